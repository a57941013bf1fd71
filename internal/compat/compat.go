// Package compat checks whether a set of PC parts can be built together.
//
// Every check is a Rule over the parts grouped by category. A rule that has
// nothing to compare (a category is missing, or present without the attribute
// it needs) reports no reasons: missing data is not evidence of a mismatch.
package compat

import (
	"fmt"
	"strings"
)

const (
	CategoryCPU         = "cpu"
	CategoryMotherboard = "motherboard"
	CategoryRAM         = "ram"
)

const (
	MessageCompatible   = "All core components appear compatible based on available data."
	MessageIncompatible = "Incompatibility found. Review details."
)

// PartDescriptor is a transient description of one part in a build.
type PartDescriptor struct {
	Name       string `json:"name"`
	Socket     string `json:"socket,omitempty"`
	MemoryType string `json:"memory_type,omitempty"`
}

type Result struct {
	Compatible bool     `json:"compatible"`
	Message    string   `json:"message"`
	Reasons    []string `json:"reasons"`
}

// Parts groups descriptors by lower-cased category name.
type Parts map[string][]PartDescriptor

func Partition(parts []PartDescriptor) Parts {
	out := make(Parts)
	for _, p := range parts {
		cat := strings.ToLower(strings.TrimSpace(p.Name))
		if cat == "" {
			continue
		}
		out[cat] = append(out[cat], p)
	}
	return out
}

// Rule returns zero or more human-readable incompatibility reasons.
type Rule func(p Parts) []string

type Validator struct {
	rules []Rule
}

// NewValidator builds a validator from rules. Without rules it uses
// DefaultRules.
func NewValidator(rules ...Rule) *Validator {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Validator{rules: rules}
}

func DefaultRules() []Rule {
	return []Rule{SocketRule, MemoryTypeRule}
}

func (v *Validator) Check(parts []PartDescriptor) Result {
	grouped := Partition(parts)
	reasons := []string{}
	for _, rule := range v.rules {
		reasons = append(reasons, rule(grouped)...)
	}
	res := Result{Compatible: len(reasons) == 0, Reasons: reasons}
	if res.Compatible {
		res.Message = MessageCompatible
	} else {
		res.Message = MessageIncompatible
	}
	return res
}

// Check runs the default rules.
func Check(parts []PartDescriptor) Result {
	return NewValidator().Check(parts)
}

// SocketRule compares every CPU socket against every motherboard socket.
// A distinct socket pair is reported once.
func SocketRule(p Parts) []string {
	return pairwise(p[CategoryCPU], p[CategoryMotherboard],
		func(d PartDescriptor) string { return d.Socket },
		func(cpu, mb string) string {
			return fmt.Sprintf("CPU socket (%s) does not match Motherboard socket (%s).", cpu, mb)
		})
}

// MemoryTypeRule compares RAM memory type against the motherboard's.
func MemoryTypeRule(p Parts) []string {
	return pairwise(p[CategoryRAM], p[CategoryMotherboard],
		func(d PartDescriptor) string { return d.MemoryType },
		func(ram, mb string) string {
			return fmt.Sprintf("RAM type (%s) is not supported by Motherboard memory type (%s).", ram, mb)
		})
}

func pairwise(left, right []PartDescriptor, attr func(PartDescriptor) string, reason func(l, r string) string) []string {
	var out []string
	seen := map[[2]string]bool{}
	for _, l := range left {
		lv := normalize(attr(l))
		if lv == "" {
			continue
		}
		for _, r := range right {
			rv := normalize(attr(r))
			if rv == "" || lv == rv {
				continue
			}
			pair := [2]string{lv, rv}
			if seen[pair] {
				continue
			}
			seen[pair] = true
			out = append(out, reason(lv, rv))
		}
	}
	return out
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

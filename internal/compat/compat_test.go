package compat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck_CPUOnlyIsCompatible(t *testing.T) {
	res := Check([]PartDescriptor{{Name: "cpu"}})

	assert.True(t, res.Compatible)
	assert.Empty(t, res.Reasons)
	assert.Equal(t, MessageCompatible, res.Message)
}

func TestCheck_SocketMismatch(t *testing.T) {
	res := Check([]PartDescriptor{
		{Name: "cpu", Socket: "AM4"},
		{Name: "motherboard", Socket: "LGA1700"},
	})

	assert.False(t, res.Compatible)
	require.Len(t, res.Reasons, 1)
	assert.Contains(t, res.Reasons[0], "AM4")
	assert.Contains(t, res.Reasons[0], "LGA1700")
	assert.Equal(t, MessageIncompatible, res.Message)
}

func TestCheck_CaseInsensitive(t *testing.T) {
	res := Check([]PartDescriptor{
		{Name: "CPU", Socket: "am4"},
		{Name: "Motherboard", Socket: "AM4"},
	})

	assert.True(t, res.Compatible)
	assert.Empty(t, res.Reasons)
}

func TestCheck_SkipsWhenSocketMissing(t *testing.T) {
	tests := []struct {
		name  string
		parts []PartDescriptor
	}{
		{"motherboard without socket", []PartDescriptor{{Name: "cpu", Socket: "AM4"}, {Name: "motherboard"}}},
		{"cpu without socket", []PartDescriptor{{Name: "cpu"}, {Name: "motherboard", Socket: "AM5"}}},
		{"motherboard only", []PartDescriptor{{Name: "motherboard", Socket: "AM5"}}},
		{"empty", nil},
		{"missing name", []PartDescriptor{{Socket: "AM4"}, {Name: "motherboard", Socket: "LGA1700"}}},
		{"unknown category", []PartDescriptor{{Name: "gpu", Socket: "PCIe"}, {Name: "motherboard", Socket: "AM4"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := Check(tc.parts)
			assert.True(t, res.Compatible)
			assert.Empty(t, res.Reasons)
		})
	}
}

func TestCheck_AllPairsChecked(t *testing.T) {
	res := Check([]PartDescriptor{
		{Name: "cpu", Socket: "AM4"},
		{Name: "cpu", Socket: "LGA1700"},
		{Name: "cpu", Socket: "LGA1700"},
		{Name: "motherboard", Socket: "AM4"},
	})

	assert.False(t, res.Compatible)
	assert.Equal(t, []string{"CPU socket (LGA1700) does not match Motherboard socket (AM4)."}, res.Reasons)
}

func TestCheck_MemoryType(t *testing.T) {
	res := Check([]PartDescriptor{
		{Name: "ram", MemoryType: "DDR5"},
		{Name: "motherboard", Socket: "AM4", MemoryType: "ddr4"},
		{Name: "cpu", Socket: "AM4"},
	})

	assert.False(t, res.Compatible)
	assert.Equal(t, []string{"RAM type (DDR5) is not supported by Motherboard memory type (DDR4)."}, res.Reasons)
}

func TestValidator_ComposesRules(t *testing.T) {
	always := func(Parts) []string { return []string{"psu too weak"} }
	v := NewValidator(SocketRule, always)

	res := v.Check([]PartDescriptor{
		{Name: "cpu", Socket: "AM4"},
		{Name: "motherboard", Socket: "AM5"},
	})

	assert.False(t, res.Compatible)
	assert.Len(t, res.Reasons, 2)
	assert.Equal(t, "psu too weak", res.Reasons[1])
}

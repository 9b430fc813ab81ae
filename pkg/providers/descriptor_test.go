package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLang(t *testing.T) {
	assert.Equal(t, "en", NormalizeLang("EN"))
	assert.Equal(t, "en", NormalizeLang(" en "))
	assert.Equal(t, "zh", NormalizeLang("zh"))
	assert.Equal(t, "", NormalizeLang(""))

	// BCP47解析失败时退化为小写
	assert.Equal(t, "not_a_lang!!", NormalizeLang("NOT_A_LANG!!"))
}

func TestDescriptorSupportsPair(t *testing.T) {
	open := Descriptor{ID: "open"}
	assert.True(t, open.SupportsPair("en", "zh"), "empty pair list supports everything")

	bound := Descriptor{
		ID: "bound",
		Pairs: []LanguagePair{
			{Source: "en", Target: "zh"},
			{Source: "ja", Target: "en"},
		},
	}
	assert.True(t, bound.SupportsPair("en", "zh"))
	assert.True(t, bound.SupportsPair("EN", "ZH"))
	assert.True(t, bound.SupportsPair("ja", "en"))
	assert.False(t, bound.SupportsPair("zh", "en"), "direction matters")
	assert.False(t, bound.SupportsPair("en", "fr"))
}

func TestDescriptorHasCapability(t *testing.T) {
	d := Descriptor{Capabilities: []Capability{CapabilityStreaming, CapabilityBatch}}

	assert.True(t, d.HasCapability(CapabilityStreaming))
	assert.True(t, d.HasCapability(CapabilityBatch))
	assert.False(t, d.HasCapability(CapabilityLanguageDetection))
}

func TestDescriptorIsLocal(t *testing.T) {
	assert.True(t, (&Descriptor{Type: TypeLocal}).IsLocal())
	assert.False(t, (&Descriptor{Type: TypeRemote}).IsLocal())
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQualityBreakdown_Overall_WeightsSumToOne(t *testing.T) {
	q := QualityBreakdown{Readability: 1, Completeness: 1, Metadata: 1, Uniqueness: 1, Structure: 1}
	assert.InDelta(t, 1.0, q.Overall(), 0.0001)
}

func TestQualityBreakdown_Overall_WeightsEachDimension(t *testing.T) {
	assert.InDelta(t, 0.25, QualityBreakdown{Readability: 1}.Overall(), 0.0001)
	assert.InDelta(t, 0.30, QualityBreakdown{Completeness: 1}.Overall(), 0.0001)
	assert.InDelta(t, 0.20, QualityBreakdown{Metadata: 1}.Overall(), 0.0001)
	assert.InDelta(t, 0.15, QualityBreakdown{Uniqueness: 1}.Overall(), 0.0001)
	assert.InDelta(t, 0.10, QualityBreakdown{Structure: 1}.Overall(), 0.0001)
}

package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimerSummary(t *testing.T) {
	timer := NewTimer()

	timer.Start("scan").Stop("scan")
	timer.Start("embed").Stop("embed")
	timer.Start("forever")

	summary := timer.Summary()

	assert.Contains(t, summary, "scan")
	assert.Contains(t, summary, "embed")
	assert.NotContains(t, summary, "forever", "phases still running are left out")

	assert.Less(t, strings.Index(summary, "scan"), strings.Index(summary, "embed"), "phases keep their start order")
}

func TestTimerSummary_Empty(t *testing.T) {
	assert.Empty(t, NewTimer().Summary())
}

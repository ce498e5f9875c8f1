package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tebben/qkanhe/session"
)

func TestPrintSnapshot(t *testing.T) {
	defer func() { jsonOutput = false }()

	snap := session.Snapshot{RunID: "r1", Kind: session.KindLink, Counts: map[string]int{"link_einleit": 1}}
	assert.NoError(t, printSnapshot(snap))
	assert.NoError(t, printSnapshot(session.Snapshot{}))

	jsonOutput = true
	assert.NoError(t, printSnapshot(snap))

	snap.Fraction = math.NaN()
	assert.ErrorContains(t, printSnapshot(snap), "print report")
}

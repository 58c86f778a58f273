package chatengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatETA(t *testing.T) {
	cases := []struct {
		name     string
		duration time.Duration
		want     string
	}{
		{"immediate", 10 * time.Second, "soon"},
		{"at the soon boundary", time.Minute, "soon"},
		{"just past the soon boundary", time.Minute + time.Second, "shortly"},
		{"at the shortly boundary", 10 * time.Minute, "shortly"},
		{"minutes only", 15 * time.Minute, "in ~15min"},
		{"hours and minutes", 90 * time.Minute, "in ~1h 30min"},
		{"exact hour", 2 * time.Hour, "in ~2h 0min"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, formatETA(tc.duration))
		})
	}
}

package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		name      string
		verbose   bool
		wantDebug bool
	}{
		{"default", false, false},
		{"verbose", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := New(&buf, tt.verbose)

			l.Debug("debug line", "key", "value")
			l.Info("info line")

			assert.Contains(t, buf.String(), "info line")
			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("debug line")))
		})
	}
}

func TestOrDiscard(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, false)

	assert.Same(t, l, OrDiscard(l))
	assert.NotNil(t, OrDiscard(nil))
	OrDiscard(nil).Error("dropped")
}

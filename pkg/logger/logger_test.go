package logger

import (
	"bytes"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Level
		wantErr bool
	}{
		{name: "debug", input: "debug", want: DebugLevel},
		{name: "upper case", input: "NOTICE", want: NoticeLevel},
		{name: "empty defaults to info", input: "", want: InfoLevel},
		{name: "error", input: " error ", want: ErrorLevel},
		{name: "unknown", input: "verbose", want: InfoLevel, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStdLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	l := NewStdLogger(false, NoticeLevel)
	l.Info("hidden %d", 1)
	l.DebugWithNetwork("pendulum", "hidden too")
	l.NoticeWithNetwork("pendulum", "vault %s", "abc")
	l.Error("boom")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[NOTICE] [PENDULUM] vault abc")
	assert.Contains(t, out, "[ERROR]  boom")
}

func TestNetworkColorIsStable(t *testing.T) {
	assert.Equal(t, networkColor("some-net"), networkColor("some-net"))
	assert.Equal(t, networkColors["pendulum"], networkColor("Pendulum"))
}

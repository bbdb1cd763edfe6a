package log_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/cadence/pkg/api"
	"github.com/kode4food/cadence/pkg/log"
)

type errStub string

func TestTopic(t *testing.T) {
	attr := log.Topic(api.TopicName("canvas.component.created"))
	assertAttrEqual(t, attr, "topic", "canvas.component.created")
}

func TestTargetID(t *testing.T) {
	attr := log.TargetID(api.TargetID("LibraryPlugin"))
	assertAttrEqual(t, attr, "target_id", "LibraryPlugin")
}

func TestOperationID(t *testing.T) {
	attr := log.OperationID(api.OperationID("library-load-symphony"))
	assertAttrEqual(t, attr, "operation_id", "library-load-symphony")
}

func TestSequenceID(t *testing.T) {
	attr := log.SequenceID(api.SequenceID("canvas-drag-symphony"))
	assertAttrEqual(t, attr, "sequence_id", "canvas-drag-symphony")
}

func TestModule(t *testing.T) {
	attr := log.Module("handlers/canvas.lua")
	assertAttrEqual(t, attr, "module", "handlers/canvas.lua")
}

func TestError(t *testing.T) {
	attr := log.Error(nil)
	assertAttrEqual(t, attr, "error", "")

	attr = log.Error(errStub("boom"))
	assertAttrEqual(t, attr, "error", "boom")
}

func TestErrorString(t *testing.T) {
	attr := log.ErrorString("badness")
	assertAttrEqual(t, attr, "error", "badness")
}

func (e errStub) Error() string { return string(e) }

func assertAttrEqual(t *testing.T, attr slog.Attr, key, value string) {
	t.Helper()
	assert.Equal(t, key, attr.Key)
	assert.Equal(t, value, attr.Value.String())
}

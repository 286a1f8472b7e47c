package xerrors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/notyesbut/shardregistry/internal/xerrors"
)

func TestNewErrorFormatsWithAndWithoutProcessor(t *testing.T) {
	e := xerrors.New(xerrors.ProcessorNotFound, "no such processor")
	assert.Equal(t, "ProcessorNotFound: no such processor", e.Error())

	withProc := e.WithProcessor("p1")
	assert.Equal(t, "ProcessorNotFound: no such processor (processor p1)", withProc.Error())
	assert.Equal(t, "ProcessorNotFound: no such processor", e.Error(), "WithProcessor must not mutate the receiver")
}

func TestIsMatchesOnlyTypedErrorsWithThatCode(t *testing.T) {
	base := xerrors.New(xerrors.CapacityExceeded, "full")
	wrapped := errors.New("outer: " + base.Error())

	assert.True(t, xerrors.Is(base, xerrors.CapacityExceeded))
	assert.False(t, xerrors.Is(base, xerrors.MigrationCooldown))
	assert.False(t, xerrors.Is(wrapped, xerrors.CapacityExceeded), "a plain errors.New is never an *Error")
}

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := xerrors.Wrap(cause, xerrors.InvalidConfiguration, "opening store")

	assert.True(t, xerrors.Is(wrapped, xerrors.InvalidConfiguration))
	assert.ErrorIs(t, wrapped, cause)
}

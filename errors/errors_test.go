package errors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	xerrors "github.com/exfatvol/exfatvol/errors"
)

func TestVolumeError__IsItself(t *testing.T) {
	assert.ErrorIs(t, xerrors.ErrEmptyName, xerrors.ErrEmptyName)
}

func TestWithMessage__PreservesSentinelIdentity(t *testing.T) {
	err := xerrors.ErrNameTooLong.WithMessage("got 300 code units")
	assert.ErrorIs(t, err, xerrors.ErrNameTooLong)
	assert.Contains(t, err.Error(), "300 code units")
}

func TestWrapError__PreservesSentinelAndUnderlyingError(t *testing.T) {
	underlying := errors.New("no such file or directory")
	err := xerrors.ErrIOFailed.WrapError(underlying)

	assert.ErrorIs(t, err, xerrors.ErrIOFailed)
	assert.ErrorIs(t, err, underlying)
}

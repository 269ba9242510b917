//go:debug panicnil=1
package trap_test

import (
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/featherbread/sluice/trap"
)

// someNilValue is never assigned; it quiets lints for a literal panic(nil).
var someNilValue any

func TestRunReturn(t *testing.T) {
	o := trap.Run(func() (int, error) {
		return 42, errors.New("silly goose")
	})
	assert.True(t, o.Returned())
	assert.False(t, o.Panicked())
	assert.False(t, o.Goexited())

	v, err := o.Values()
	assert.Equal(t, 42, v)
	assert.ErrorContains(t, err, "silly goose")
}

func TestRunPanic(t *testing.T) {
	o := trap.Run(func() (int, error) { panic("silly panda") })
	assert.False(t, o.Returned())
	assert.True(t, o.Panicked())
	assert.False(t, o.Goexited())
	assert.Equal(t, "silly panda", o.PanicValue())
}

func TestRunPanicNil(t *testing.T) {
	o := trap.Run(func() (int, error) { panic(someNilValue) })
	assert.False(t, o.Returned())
	assert.True(t, o.Panicked())
	assert.False(t, o.Goexited())
	assert.Nil(t, o.PanicValue())
}

func TestRunGoexit(t *testing.T) {
	o := trap.Run(func() (int, error) {
		runtime.Goexit()
		return 0, nil
	})
	assert.False(t, o.Returned())
	assert.False(t, o.Panicked())
	assert.True(t, o.Goexited())
}

package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/pesantren/core"
)

func TestRollbarLogger(t *testing.T) {
	conf := core.DefaultConfig()
	conf.TestMode = true

	var out bytes.Buffer
	l := NewRollbarLogger(log.New(&out, "", 0), conf)

	err := errors.New("profile fetch timeout")
	l.Warn("resolving profile", err, core.Person{ID: "u1", Email: "ahmad@pesantren.id"})

	assert.Contains(t, out.String(), "WARN: resolving profile")
	assert.Contains(t, out.String(), "profile fetch timeout")
	assert.Contains(t, out.String(), "person: u1")
	assert.NotContains(t, out.String(), "ahmad@pesantren.id")
}

func TestRollbarLogger_prepare(t *testing.T) {
	l := RollbarLogger{}
	args := l.prepare("msg", []interface{}{
		core.Person{ID: "u1"},
		map[string]interface{}{"session": "s1"},
		core.Person{ID: "u2"},
	})
	assert.Equal(t, []interface{}{"msg", map[string]interface{}{"session": "s1"}}, args)
}

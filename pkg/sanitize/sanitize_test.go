package sanitize_test

import (
	"testing"

	"flow402/pkg/sanitize"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	Name string
	Note *string
	Kept int
}

func TestStruct_TrimsAndEscapes(t *testing.T) {
	note := "  <b>hi</b>  "
	s := sample{Name: "  <script>x</script>  ", Note: &note, Kept: 7}

	sanitize.Struct(&s)

	assert.Equal(t, "&lt;script&gt;x&lt;/script&gt;", s.Name)
	assert.Equal(t, "&lt;b&gt;hi&lt;/b&gt;", *s.Note)
	assert.Equal(t, 7, s.Kept)
}

func TestStruct_NilPointerFieldUntouched(t *testing.T) {
	s := sample{Name: "ok"}
	assert.NotPanics(t, func() { sanitize.Struct(&s) })
	assert.Nil(t, s.Note)
}

func TestStruct_IgnoresNonPointerInput(t *testing.T) {
	s := sample{Name: "  raw  "}
	assert.NotPanics(t, func() { sanitize.Struct(s) })
	assert.Equal(t, "  raw  ", s.Name)
}

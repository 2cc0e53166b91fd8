package smtpapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func mustJSON(t *testing.T, h *Header) string {
	t.Helper()
	s, err := h.JSON()
	require.NoError(t, err)
	return s
}

func TestHeader_EmptySerializesToEmptyObject(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "{}", mustJSON(t, New(nil)))
	assert.Equal(t, "{}", mustJSON(t, New(&Description{})))
}

func TestHeader_AddTo(t *testing.T) {
	t.Parallel()

	h := New(nil)
	h.AddTo("a@example.com")
	h.AddTo("b@example.com", "c@example.com")
	h.AddTo("a@example.com")

	assert.Equal(t, []string{"a@example.com", "b@example.com", "c@example.com", "a@example.com"}, h.Recipients())
	assert.Equal(t, `{"to":["a@example.com","b@example.com","c@example.com","a@example.com"]}`, mustJSON(t, h))
}

func TestHeader_SetTos(t *testing.T) {
	t.Parallel()

	h := New(nil)
	h.AddTo("old@example.com")
	h.SetTos("new@example.com")
	assert.Equal(t, []string{"new@example.com"}, h.Recipients())

	h.SetTos("x@example.com", "y@example.com")
	assert.Equal(t, []string{"x@example.com", "y@example.com"}, h.Recipients())

	h.SetTos()
	assert.Equal(t, "{}", mustJSON(t, h))
}

func TestHeader_AddSubstitution_SingleValues(t *testing.T) {
	t.Parallel()

	h := New(nil)
	h.AddSubstitution("-name-", "Alice")
	h.AddSubstitution("-name-", "Bob")

	assert.Equal(t, `{"sub":{"-name-":["Alice","Bob"]}}`, mustJSON(t, h))
}

func TestHeader_AddSubstitution_ListValues(t *testing.T) {
	t.Parallel()

	h := New(nil)
	h.AddSubstitution("-name-", "Alice")
	h.AddSubstitution("-name-", []string{"Bob", "Carol"}...)
	h.AddSubstitution("-city-", "Paris", "Rome")

	d := h.Description()
	assert.Equal(t, []string{"Alice", "Bob", "Carol"}, d.Sub["-name-"])
	assert.Equal(t, []string{"Paris", "Rome"}, d.Sub["-city-"])
	assert.Len(t, d.Sub, 2)
}

func TestHeader_SetSubstitutions(t *testing.T) {
	t.Parallel()

	h := New(nil)
	h.AddSubstitution("-old-", "x")
	h.SetSubstitutions(map[string][]string{"-new-": {"y"}})

	assert.Equal(t, `{"sub":{"-new-":["y"]}}`, mustJSON(t, h))

	h.SetSubstitutions(nil)
	h.AddSubstitution("-again-", "z")
	assert.Equal(t, `{"sub":{"-again-":["z"]}}`, mustJSON(t, h))
}

func TestHeader_UniqueArgs(t *testing.T) {
	t.Parallel()

	h := New(nil)
	h.AddUniqueArg("customer", "42")
	h.AddUniqueArg("customer", "43")
	assert.Equal(t, `{"unique_args":{"customer":"43"}}`, mustJSON(t, h))

	h.SetUniqueArgs(map[string]string{"batch": "7"})
	assert.Equal(t, `{"unique_args":{"batch":"7"}}`, mustJSON(t, h))
}

func TestHeader_Categories(t *testing.T) {
	t.Parallel()

	h := New(nil)
	h.AddCategory("welcome")
	h.AddCategory("onboarding", "drip")
	assert.Equal(t, `{"category":["welcome","onboarding","drip"]}`, mustJSON(t, h))

	h.SetCategories("newsletter")
	assert.Equal(t, `{"category":["newsletter"]}`, mustJSON(t, h))
}

func TestHeader_Sections(t *testing.T) {
	t.Parallel()

	h := New(nil)
	h.AddSection("-footer-", "<p>Bye & thanks</p>")
	assert.Equal(t, `{"section":{"-footer-":"<p>Bye & thanks</p>"}}`, mustJSON(t, h))

	h.SetSections(map[string]string{"-header-": "Hi"})
	assert.Equal(t, `{"section":{"-header-":"Hi"}}`, mustJSON(t, h))
}

func TestHeader_Filters(t *testing.T) {
	t.Parallel()

	h := New(nil)
	h.AddFilter("clicktrack", "enable", 1)
	h.AddFilter("clicktrack", "enable_text", 0)
	h.AddFilter("footer", "text/plain", "sent by us")

	assert.Equal(t,
		`{"filters":{"clicktrack":{"settings":{"enable":1,"enable_text":0}},"footer":{"settings":{"text/plain":"sent by us"}}}}`,
		mustJSON(t, h))

	h.SetFilters(map[string]Filter{"opentrack": {Settings: map[string]any{"enable": 1}}})
	assert.Equal(t, `{"filters":{"opentrack":{"settings":{"enable":1}}}}`, mustJSON(t, h))
}

func TestHeader_FieldOrderAndOmission(t *testing.T) {
	t.Parallel()

	h := New(nil)
	h.AddFilter("bypass_list_management", "enable", 1)
	h.AddCategory("c")
	h.AddTo("a@example.com")
	h.AddUniqueArg("k", "v")

	assert.Equal(t,
		`{"to":["a@example.com"],"unique_args":{"k":"v"},"category":["c"],"filters":{"bypass_list_management":{"settings":{"enable":1}}}}`,
		mustJSON(t, h))
}

func TestNew_CopiesSeed(t *testing.T) {
	t.Parallel()

	seed := &Description{
		To:       []string{"a@example.com"},
		Sub:      map[string][]string{"-n-": {"A"}},
		Category: StringList{"x"},
	}
	h := New(seed)
	h.AddTo("b@example.com")
	h.AddSubstitution("-n-", "B")

	assert.Equal(t, []string{"a@example.com"}, seed.To)
	assert.Equal(t, []string{"A"}, seed.Sub["-n-"])
	assert.Equal(t, `{"to":["a@example.com","b@example.com"],"sub":{"-n-":["A","B"]},"category":["x"]}`, mustJSON(t, h))
}

func TestDescription_DecodeJSON(t *testing.T) {
	t.Parallel()

	var d Description
	err := json.Unmarshal([]byte(`{
		"to": ["a@example.com"],
		"sub": {"-name-": ["Alice"]},
		"unique_args": {"id": "1"},
		"category": "single",
		"section": {"-s-": "x"},
		"filters": {"clicktrack": {"settings": {"enable": 1}}}
	}`), &d)
	require.NoError(t, err)

	h := New(&d)
	assert.Equal(t,
		`{"to":["a@example.com"],"sub":{"-name-":["Alice"]},"unique_args":{"id":"1"},"category":["single"],"section":{"-s-":"x"},"filters":{"clicktrack":{"settings":{"enable":1}}}}`,
		mustJSON(t, h))
}

func TestStringList_YAML(t *testing.T) {
	t.Parallel()

	var out struct {
		One  StringList `yaml:"one"`
		Many StringList `yaml:"many"`
		Nil  StringList `yaml:"nil"`
	}
	err := yaml.Unmarshal([]byte("one: a\nmany: [b, c]\nnil: ~\n"), &out)
	require.NoError(t, err)

	assert.Equal(t, StringList{"a"}, out.One)
	assert.Equal(t, StringList{"b", "c"}, out.Many)
	assert.Nil(t, out.Nil)
}

func TestStringList_JSONRejectsObjects(t *testing.T) {
	t.Parallel()

	var l StringList
	require.Error(t, json.Unmarshal([]byte(`{"a":1}`), &l))
	require.NoError(t, json.Unmarshal([]byte(`null`), &l))
	assert.Nil(t, l)
}

func TestHeader_ZeroValueIsUsable(t *testing.T) {
	t.Parallel()

	var h Header
	assert.Equal(t, "{}", mustJSON(t, &h))

	h.AddSubstitution("-name-", "Alice")
	h.AddUniqueArg("id", "7")
	h.AddSection("-footer-", "bye")
	h.AddFilter("clicktrack", "enable", 1)
	h.AddCategory("news")
	h.AddTo("a@example.com")

	assert.Equal(t,
		`{"to":["a@example.com"],"sub":{"-name-":["Alice"]},"unique_args":{"id":"7"},"category":["news"],"section":{"-footer-":"bye"},"filters":{"clicktrack":{"settings":{"enable":1}}}}`,
		mustJSON(t, &h))
}

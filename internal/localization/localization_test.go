package localization_test

import (
	"testing"
	"testing/fstest"

	"civictrack/backend/internal/localization"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinCataloguesAgree(t *testing.T) {
	l, err := localization.NewLocalizer()
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"en", "uk"}, l.Languages())
	for _, key := range []string{
		"notification.SLA_APPROACHING.title",
		"notification.SLA_BREACHED.title",
		"notification.COMPLAINT_STATUS_CHANGED.title",
		"notification.COMPLAINT_ASSIGNED.title",
		"notification.FEEDBACK_RECEIVED.title",
		"bot.help",
		"bot.linked",
		"bot.link_failed",
		"bot.not_linked",
		"bot.unread",
		"bot.language_set",
	} {
		assert.NotEqual(t, key, l.GetString("en", key))
		assert.NotEqual(t, key, l.GetString("uk", key))
	}
}

func TestGetStringFallback(t *testing.T) {
	fsys := fstest.MapFS{
		"loc/en.json": {Data: []byte(`{"greet": "Hello", "only_en": "English"}`)},
		"loc/uk.json": {Data: []byte(`{"greet": "Привіт"}`)},
		"loc/README":  {Data: []byte(`ignored`)},
	}
	l, err := localization.NewLocalizerFS(fsys, "loc")
	require.NoError(t, err)

	assert.Equal(t, "Привіт", l.GetString("uk", "greet"))
	assert.Equal(t, "English", l.GetString("uk", "only_en"), "falls back to English")
	assert.Equal(t, "Hello", l.GetString("de", "greet"), "unknown language falls back to English")
	assert.Equal(t, "missing", l.GetString("en", "missing"), "unknown key returns the key")
}

func TestFormat(t *testing.T) {
	fsys := fstest.MapFS{
		"loc/en.json": {Data: []byte(`{"msg": "Complaint {title} is {status} ({unknown})"}`)},
	}
	l, err := localization.NewLocalizerFS(fsys, "loc")
	require.NoError(t, err)

	got := l.Format("en", "msg", map[string]string{"title": "Pothole", "status": "RESOLVED"})
	assert.Equal(t, "Complaint Pothole is RESOLVED ({unknown})", got)
}

func TestNewLocalizerFS_BadJSON(t *testing.T) {
	fsys := fstest.MapFS{"loc/en.json": {Data: []byte(`{not json`)}}
	_, err := localization.NewLocalizerFS(fsys, "loc")
	assert.Error(t, err)
}

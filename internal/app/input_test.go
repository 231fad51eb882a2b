package app

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSimpleText(t *testing.T) {
	var out bytes.Buffer
	r := bufio.NewReader(strings.NewReader("  cashier1  \n"))

	got, err := getSimpleText(r, "Login", &out)
	require.NoError(t, err)
	assert.Equal(t, "cashier1", got)
	assert.Contains(t, out.String(), "Login")
}

func TestGetSimpleText_EOFWithPartialLine(t *testing.T) {
	var out bytes.Buffer
	r := bufio.NewReader(strings.NewReader("partial"))

	got, err := getSimpleText(r, "Login", &out)
	require.NoError(t, err)
	assert.Equal(t, "partial", got)
}

func TestGetSimpleText_EOFWithoutInput(t *testing.T) {
	var out bytes.Buffer
	r := bufio.NewReader(strings.NewReader(""))

	_, err := getSimpleText(r, "Login", &out)
	assert.Error(t, err)
}

func TestGetSecret_UsesReadPasswordSeam(t *testing.T) {
	orig := readPassword
	readPassword = func(fd int) ([]byte, error) { return []byte("1234"), nil }
	t.Cleanup(func() { readPassword = orig })

	var out bytes.Buffer
	pw, err := getSecret(&out)
	require.NoError(t, err)
	assert.Equal(t, []byte("1234"), pw)
	assert.Contains(t, out.String(), "PIN")
}

func TestGetMultiline(t *testing.T) {
	var out bytes.Buffer
	r := bufio.NewReader(strings.NewReader("{\"total\": 10,\n\"lines\": []}\n\n"))

	got, err := getMultiline(r, "Order payload (JSON)", &out)
	require.NoError(t, err)
	assert.Equal(t, "{\"total\": 10,\n\"lines\": []}", got)
}

func TestGetMultiline_EmptyInput(t *testing.T) {
	var out bytes.Buffer
	r := bufio.NewReader(strings.NewReader("\n"))

	got, err := getMultiline(r, "Order payload (JSON)", &out)
	require.NoError(t, err)
	assert.Empty(t, got)
}

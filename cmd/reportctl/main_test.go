package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/comms-notebook/internal/model"
	"github.com/jwalitptl/comms-notebook/internal/repository"
	"github.com/jwalitptl/comms-notebook/internal/repository/memory"
)

func withMemoryStore(t *testing.T) *memory.WatermarkStore {
	t.Helper()
	store := memory.NewWatermarkStore()
	orig := openStore
	openStore = func(context.Context, *rootOptions) (repository.WatermarkRepository, func(), error) {
		return store, func() {}, nil
	}
	t.Cleanup(func() { openStore = orig })
	return store
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "reportctl dev")
}

func TestWatermarkSetGetRm(t *testing.T) {
	store := withMemoryStore(t)

	_, err := runCmd(t, "watermark", "set", model.WatermarkLastDigest, "2026-10-14T12:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-14T12:00:00Z", store.Snapshot()[model.WatermarkLastDigest])

	out, err := runCmd(t, "wm", "get", model.WatermarkLastDigest)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-14T12:00:00Z\n", out)

	_, err = runCmd(t, "watermark", "rm", model.WatermarkLastDigest)
	require.NoError(t, err)
	assert.Empty(t, store.Snapshot())

	_, err = runCmd(t, "watermark", "rm", model.WatermarkLastDigest)
	assert.ErrorContains(t, err, "not set")

	_, err = runCmd(t, "watermark", "get", model.WatermarkLastDigest)
	assert.ErrorContains(t, err, "not set")
}

func TestWatermarkSetValidates(t *testing.T) {
	store := withMemoryStore(t)
	key := model.NewCumulativeKey(2026, "E001", "Llegó tarde").String()

	_, err := runCmd(t, "watermark", "set", model.WatermarkLastWeekly, "yesterday")
	assert.Error(t, err)

	_, err = runCmd(t, "watermark", "set", key, "three")
	assert.Error(t, err)

	_, err = runCmd(t, "watermark", "set", key, "-3")
	assert.Error(t, err)

	_, err = runCmd(t, "watermark", "set", key, "6")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{key: "6"}, store.Snapshot())
}

func TestWatermarkListAndClear(t *testing.T) {
	store := withMemoryStore(t)
	ctx := context.Background()
	key := model.NewCumulativeKey(2026, "E001", "x").String()
	require.NoError(t, store.Set(ctx, model.WatermarkLastDigest, "2026-10-14T12:00:00Z"))
	require.NoError(t, store.Set(ctx, key, "3"))

	out, err := runCmd(t, "watermark", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, model.WatermarkLastDigest)
	assert.Contains(t, out, "(2026 E001)")

	_, err = runCmd(t, "watermark", "clear")
	assert.ErrorContains(t, err, "--yes")
	assert.Len(t, store.Snapshot(), 2)

	_, err = runCmd(t, "watermark", "clear", "--yes")
	require.NoError(t, err)
	assert.Empty(t, store.Snapshot())
}

func TestRosterCmd(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	write("students.json", `[{"name":"Juan Pérez","enrolment":"E001","coursingYear":3}]`)
	write("general.json", `{"messages":["Llegó tarde"],"reportTo":["direccion@school.test"]}`)

	out, err := runCmd(t, "roster", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "students:   1")
	assert.Contains(t, out, "teachers:   0")
	assert.Contains(t, out, "report to:  direccion@school.test")

	write("students.json", `[{"name":"Juan Pérez","enrolment":"E001","coursingYear":9}]`)
	_, err = runCmd(t, "roster", "--dir", dir)
	assert.ErrorContains(t, err, "students.json[0]")
}

func TestRunRejectsBadTime(t *testing.T) {
	_, err := runCmd(t, "run", "--at", "tomorrow")
	assert.ErrorContains(t, err, "invalid --at")
}

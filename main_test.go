package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/plastic-in-river/internal/compress"
	"github.com/ytget/plastic-in-river/internal/config"
	"github.com/ytget/plastic-in-river/internal/dataset"
	"github.com/ytget/plastic-in-river/internal/model"
	"github.com/ytget/plastic-in-river/internal/stats"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 7)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// newMirror lays out a local copy of the bucket for the current version
// with two records per split.
func newMirror(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, split := range model.Splits() {
		dir := filepath.Join(root, "v"+dataset.CurrentVersion, string(split))
		require.NoError(t, os.MkdirAll(dir, 0755))

		var images, annotations []compress.File
		for i, text := range []string{"0 1 1 3 2\n2 0 0 4 4\n", ""} {
			images = append(images, compress.File{Name: fmt.Sprintf("images/%04d.png", i), Data: pngBytes(t, 6, 4)})
			annotations = append(annotations, compress.File{Name: fmt.Sprintf("annotations/%04d.txt", i), Data: []byte(text)})
		}
		require.NoError(t, compress.CreateTarGz(filepath.Join(dir, "images"+dataset.ArchiveExt), images))
		require.NoError(t, compress.CreateTarGz(filepath.Join(dir, "annotations"+dataset.ArchiveExt), annotations))
	}
	return root
}

// countPrefix counts output lines starting with prefix
func countPrefix(out, prefix string) int {
	n := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}

type cliResult struct {
	stdout string
	stderr string
	err    error
}

func runCLI(t *testing.T, args ...string) cliResult {
	t.Helper()
	t.Setenv(config.EnvConfigFile, "")
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func TestRunVersion(t *testing.T) {
	res := runCLI(t, "-v")
	require.NoError(t, res.err)
	assert.Equal(t, AppName+" vdev\n", res.stdout)
}

func TestRunUsage(t *testing.T) {
	res := runCLI(t)
	assert.True(t, errors.Is(res.err, errUsage))
	assert.Contains(t, res.stderr, "commands:")

	res = runCLI(t, "bogus")
	assert.True(t, errors.Is(res.err, errUsage))
	assert.Contains(t, res.stderr, `unknown command "bogus"`)
}

func TestRunURLs(t *testing.T) {
	res := runCLI(t, "-version", "1.0.0", "urls")
	require.NoError(t, res.err)

	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	require.Len(t, lines, 6)
	assert.Contains(t, res.stdout, dataset.DefaultBaseURL+"train/images.tar.gz")
	assert.NotContains(t, res.stdout, "/v1.0.0/")

	res = runCLI(t, "urls")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, dataset.DefaultBaseURL+"v1.1.0/validation/annotations.tar.gz")

	res = runCLI(t, "-version", "one", "urls")
	assert.True(t, errors.Is(res.err, dataset.ErrInvalidVersion))
}

func TestRunInfo(t *testing.T) {
	res := runCLI(t, "info")
	require.NoError(t, res.err)

	var info dataset.DatasetInfo
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &info))
	assert.Equal(t, dataset.CurrentVersion, info.Version)
	assert.Equal(t, model.LabelNames(), info.Features.Litter.Feature.Label.Names)
}

func TestRunFetchAndCache(t *testing.T) {
	mirror := newMirror(t)
	cacheDir := t.TempDir()

	res := runCLI(t, "-base-url", mirror, "-cache-dir", cacheDir, "fetch")
	require.NoError(t, res.err)
	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "train"))
	assert.Contains(t, lines[0], cacheDir)

	res = runCLI(t, "-base-url", mirror, "-cache-dir", cacheDir, "cache")
	require.NoError(t, res.err)
	assert.Equal(t, 6, countPrefix(res.stdout, "ok"))

	// Remove one cached archive and prune it from the index
	var removed string
	require.NoError(t, filepath.WalkDir(filepath.Join(cacheDir, "downloads"), func(p string, d os.DirEntry, err error) error {
		if err == nil && removed == "" && !d.IsDir() {
			removed = p
		}
		return err
	}))
	require.NoError(t, os.Remove(removed))

	res = runCLI(t, "-base-url", mirror, "-cache-dir", cacheDir, "cache", "-prune")
	require.NoError(t, res.err)
	assert.Equal(t, 1, countPrefix(res.stdout, "pruned"))
	assert.Equal(t, 5, countPrefix(res.stdout, "ok"))
}

func TestRunLoad(t *testing.T) {
	mirror := newMirror(t)
	res := runCLI(t, "-base-url", mirror, "-cache-dir", t.TempDir(), "load", "-split", "validation")
	require.NoError(t, res.err)

	var lines []recordLine
	scanner := bufio.NewScanner(strings.NewReader(res.stdout))
	for scanner.Scan() {
		var line recordLine
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.Len(t, lines, 2)

	assert.Equal(t, "images/0000.png", lines[0].ImageName)
	require.NotNil(t, lines[0].Image)
	assert.Equal(t, [3]int{4, 6, 1}, lines[0].Image.Shape)
	assert.Equal(t, []model.LitterItem{
		{Label: model.LabelPlasticBag, BBox: model.BBox{1, 1, 3, 2}},
		{Label: model.LabelOtherPlasticWaste, BBox: model.BBox{0, 0, 4, 4}},
	}, lines[0].Litter)
	assert.Empty(t, lines[1].Litter)
	assert.NotNil(t, lines[1].Litter)
}

func TestRunLoadLimitAndNoImages(t *testing.T) {
	mirror := newMirror(t)
	res := runCLI(t, "-base-url", mirror, "-cache-dir", t.TempDir(), "load", "-split", "test", "-limit", "1", "-no-images")
	require.NoError(t, res.err)

	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"image":null`)
}

func TestRunLoadLimitStopsBeforeNextRecord(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "v"+dataset.CurrentVersion, string(model.SplitTrain))
	require.NoError(t, os.MkdirAll(dir, 0755))

	images := []compress.File{
		{Name: "images/0000.png", Data: pngBytes(t, 6, 4)},
		{Name: "images/0001.png", Data: pngBytes(t, 6, 4)},
		{Name: "images/0002.png", Data: []byte("not an image")},
	}
	var annotations []compress.File
	for i := range images {
		annotations = append(annotations, compress.File{Name: fmt.Sprintf("annotations/%04d.txt", i), Data: []byte("1 0 0 2 2\n")})
	}
	require.NoError(t, compress.CreateTarGz(filepath.Join(dir, "images"+dataset.ArchiveExt), images))
	require.NoError(t, compress.CreateTarGz(filepath.Join(dir, "annotations"+dataset.ArchiveExt), annotations))

	res := runCLI(t, "-base-url", root, "-cache-dir", t.TempDir(), "load", "-split", "train", "-limit", "2")
	require.NoError(t, res.err)
	assert.Len(t, strings.Split(strings.TrimSpace(res.stdout), "\n"), 2)

	res = runCLI(t, "-base-url", root, "-cache-dir", t.TempDir(), "load", "-split", "train")
	assert.Error(t, res.err)
}

func TestRunFetchRecordsEveryArchive(t *testing.T) {
	mirror := newMirror(t)
	for trial := 0; trial < 3; trial++ {
		cacheDir := t.TempDir()
		res := runCLI(t, "-base-url", mirror, "-cache-dir", cacheDir, "fetch")
		require.NoError(t, res.err)

		res = runCLI(t, "-base-url", mirror, "-cache-dir", cacheDir, "cache")
		require.NoError(t, res.err)
		assert.Equal(t, 6, countPrefix(res.stdout, "ok"), "trial %d", trial)
	}
}

func TestRunLoadUnknownSplit(t *testing.T) {
	res := runCLI(t, "-cache-dir", t.TempDir(), "load", "-split", "dev")
	assert.True(t, errors.Is(res.err, model.ErrUnknownSplit))
}

func TestRunStats(t *testing.T) {
	mirror := newMirror(t)
	plots := t.TempDir()
	res := runCLI(t, "-base-url", mirror, "-cache-dir", t.TempDir(), "stats", "-split", "train", "-plots", plots)
	require.NoError(t, res.err)

	var summaries map[model.Split]stats.Summary
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &summaries))
	require.Contains(t, summaries, model.SplitTrain)

	s := summaries[model.SplitTrain]
	assert.Equal(t, 2, s.Records)
	assert.Equal(t, 2, s.Items)
	assert.Equal(t, 1, s.EmptyRecords)
	assert.Equal(t, 1, s.LabelCounts["PLASTIC_BAG"])

	_, err := os.Stat(filepath.Join(plots, "train", stats.LabelPlotFile))
	assert.NoError(t, err)
}

func TestRunExport(t *testing.T) {
	mirror := newMirror(t)
	out := t.TempDir()

	res := runCLI(t, "-base-url", mirror, "-cache-dir", t.TempDir(), "export", "-split", "train", "-out", out, "-previews")
	require.NoError(t, res.err)

	for _, p := range []string{
		filepath.Join(out, "train", "images.tar.gz"),
		filepath.Join(out, "train", "annotations.tar.gz"),
		filepath.Join(out, "train.jsonl"),
		filepath.Join(out, "train", "previews", "0000.png"),
	} {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}

	res = runCLI(t, "-cache-dir", t.TempDir(), "export", "-split", "train")
	assert.True(t, errors.Is(res.err, errUsage))
}

func TestRunConfigFile(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("version: 1.0.0\npairing: stem\n"), 0644))

	res := runCLI(t, "-config", cfg, "urls")
	require.NoError(t, res.err)
	assert.NotContains(t, res.stdout, "/v1.")

	bad := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("pairing: diagonal\n"), 0644))
	res = runCLI(t, "-config", bad, "urls")
	assert.Error(t, res.err)
}

package multiplex_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agilentuimf/internal/multiplex"
	"agilentuimf/internal/testsupport"
	"agilentuimf/internal/uimf"
)

func framesWith(sequences ...string) []uimf.Frame {
	frames := make([]uimf.Frame, len(sequences))
	for i, seq := range sequences {
		frames[i] = uimf.Frame{Number: i + 1, Type: 1, EncodingSequence: seq}
	}
	return frames
}

func TestClassifyNoFramesIsError(t *testing.T) {
	result := multiplex.Classify(nil, "Sample_4bit.uimf")
	assert.Equal(t, multiplex.Error, result.Kind)
}

func TestClassifyMetadataMatchIgnoresOrder(t *testing.T) {
	orders := [][]string{
		{"", `C:\IMS\NoMux.txt`, `C:\IMS\4Bit_24OS.txt`},
		{`C:\IMS\4Bit_24OS.txt`, "", `C:\IMS\NoMux.txt`},
		{`/data/sequences/4bit_24os.txt`, `/data/sequences/4bit_24os.txt`},
	}
	for _, seqs := range orders {
		result := multiplex.Classify(framesWith(seqs...), "Sample.uimf")
		assert.Equal(t, multiplex.Multiplexed, result.Kind, "%v", seqs)
		assert.Equal(t, 4, result.BitWidth)
		assert.Equal(t, multiplex.SourceMetadata, result.Source)
	}
}

func TestClassifyMetadataWithoutMatchIgnoresFilename(t *testing.T) {
	result := multiplex.Classify(framesWith(`C:\IMS\Standard.txt`), "Sample_4bit.uimf")
	assert.Equal(t, multiplex.NotMultiplexed, result.Kind)
	assert.Zero(t, result.BitWidth)
}

func TestClassifyConflictingWidthsFirstSortedWins(t *testing.T) {
	result := multiplex.Classify(framesWith(`C:\IMS\5bit_a.txt`, `C:\IMS\3bit_b.txt`), "x.uimf")
	require.Equal(t, multiplex.Multiplexed, result.Kind)
	assert.Equal(t, 3, result.BitWidth)
	assert.Equal(t, []string{`C:\IMS\5bit_a.txt`}, result.Conflicts)
}

func TestClassifyFilenameFallback(t *testing.T) {
	cases := map[string]multiplex.Result{
		"BSA_65min_0pt5uL_1pt5ms_4bit.uimf":    {Kind: multiplex.Multiplexed, BitWidth: 4, Source: multiplex.SourceFilename},
		"BSA_65min_0pt5uL_1pt5ms.uimf":         {Kind: multiplex.NotMultiplexed},
		"QC_Shew_3bit_run2.uimf":               {Kind: multiplex.Multiplexed, BitWidth: 3, Source: multiplex.SourceFilename},
		"Sample4bit.uimf":                      {Kind: multiplex.NotMultiplexed},
		filepath.Join("/tmp", "Run_8bit.uimf"): {Kind: multiplex.Multiplexed, BitWidth: 8, Source: multiplex.SourceFilename},
		"Run_12bit_x.uimf":                     {Kind: multiplex.NotMultiplexed},
	}
	for name, want := range cases {
		got := multiplex.Classify(framesWith("", ""), name)
		assert.Equal(t, want.Kind, got.Kind, name)
		assert.Equal(t, want.BitWidth, got.BitWidth, name)
		assert.Equal(t, want.Source, got.Source, name)
	}
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "multiplexed (4-bit)", multiplex.Result{Kind: multiplex.Multiplexed, BitWidth: 4}.String())
	assert.Equal(t, "not multiplexed", multiplex.Result{}.String())
	assert.Equal(t, "error", multiplex.Result{Kind: multiplex.Error}.String())
}

func TestClassifyFile(t *testing.T) {
	dir := t.TempDir()
	muxPath := filepath.Join(dir, "Plain.uimf")
	testsupport.WriteUIMF(t, muxPath, testsupport.UIMFFixture{Frames: testsupport.SimpleFrames(2, `C:\IMSFiles\4Bit_24OS.txt`)})
	result, err := multiplex.ClassifyFile(context.Background(), muxPath)
	require.NoError(t, err)
	assert.True(t, result.Multiplexed())
	assert.Equal(t, 4, result.BitWidth)

	legacyPath := filepath.Join(dir, "Old_Run_5bit.uimf")
	testsupport.WriteUIMF(t, legacyPath, testsupport.UIMFFixture{Legacy: true, Frames: testsupport.SimpleFrames(1, "")})
	result, err = multiplex.ClassifyFile(context.Background(), legacyPath)
	require.NoError(t, err)
	assert.Equal(t, 5, result.BitWidth)
	assert.Equal(t, multiplex.SourceFilename, result.Source)

	emptyPath := filepath.Join(dir, "Empty.uimf")
	testsupport.WriteUIMF(t, emptyPath, testsupport.UIMFFixture{})
	result, err = multiplex.ClassifyFile(context.Background(), emptyPath)
	require.Error(t, err)
	assert.Equal(t, multiplex.Error, result.Kind)
}

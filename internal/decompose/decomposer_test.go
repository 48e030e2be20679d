package decompose

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lowrank/internal/metrics"
	"github.com/born-ml/lowrank/internal/nn"
	"github.com/born-ml/lowrank/internal/tensor"
)

// twoLevelModel builds {block1: {fc: Linear(10,20)}, fc2: Linear(20,5)}.
func twoLevelModel(t *testing.T) *nn.Dict {
	t.Helper()
	return nn.NewDict().
		MustAdd("block1", nn.NewDict().MustAdd("fc", newLinear(t, 10, 20, true, 1))).
		MustAdd("fc2", newLinear(t, 20, 5, true, 2))
}

func snapshot(m nn.Module) map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor)
	for k, v := range m.StateDict() {
		out[k] = v.Clone()
	}
	return out
}

func paths(t *testing.T, m nn.Module) []string {
	t.Helper()
	var out []string
	require.NoError(t, nn.Walk(m, func(path string, _ nn.Module) error {
		out = append(out, path)
		return nil
	}))
	return out
}

func pair(t *testing.T, c nn.Container, name string) (*nn.Linear, *nn.Linear) {
	t.Helper()
	child, ok := c.Child(name)
	require.True(t, ok, name)
	seq, ok := child.(*nn.Sequential)
	require.True(t, ok, "%s should be a Sequential, got %T", name, child)
	require.Equal(t, 2, seq.Len())
	return seq.Module(0).(*nn.Linear), seq.Module(1).(*nn.Linear)
}

func TestDecompose_EndToEnd(t *testing.T) {
	model := twoLevelModel(t)

	out, err := Decompose(model, 0.5)
	require.NoError(t, err)

	root := out.(*nn.Dict)
	assert.Equal(t, []string{"block1", "fc2"}, root.ChildNames())

	block, _ := root.Child("block1")
	a, b := pair(t, block.(nn.Container), "fc")
	assert.Equal(t, [2]int{10, 10}, [2]int{a.InFeatures(), a.OutFeatures()})
	assert.False(t, a.HasBias())
	assert.Equal(t, [2]int{10, 20}, [2]int{b.InFeatures(), b.OutFeatures()})
	assert.True(t, b.HasBias())

	a, b = pair(t, root, "fc2")
	assert.Equal(t, [2]int{20, 2}, [2]int{a.InFeatures(), a.OutFeatures()})
	assert.Equal(t, [2]int{2, 5}, [2]int{b.InFeatures(), b.OutFeatures()})

	assert.ElementsMatch(t, []string{
		"block1.fc.0.weight", "block1.fc.1.weight", "block1.fc.1.bias",
		"fc2.0.weight", "fc2.1.weight", "fc2.1.bias",
	}, keys(out.StateDict()))
}

func keys(m map[string]*tensor.RawTensor) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestDecompose_CopyIsolation(t *testing.T) {
	model := twoLevelModel(t)
	before := snapshot(model)
	beforePaths := paths(t, model)

	out, err := Decompose(model, 0.3)
	require.NoError(t, err)

	after := model.StateDict()
	require.Len(t, after, len(before))
	for k, v := range before {
		assert.True(t, v.Equal(after[k]), k)
	}
	assert.Equal(t, beforePaths, paths(t, model))

	// Mutating the output never reaches the input.
	for _, p := range out.Parameters() {
		data := p.Tensor().AsFloat32()
		for i := range data {
			data[i] = 123
		}
	}
	for k, v := range before {
		assert.True(t, v.Equal(model.StateDict()[k]), k)
	}
}

func TestDecompose_StructuralIsomorphism(t *testing.T) {
	model := nn.NewDict().
		MustAdd("encoder", nn.NewSequential(
			newLinear(t, 8, 16, true, 3),
			nn.NewReLU(),
			nn.NewDict().
				MustAdd("proj", newLinear(t, 16, 16, false, 4)).
				MustAdd("norm", nn.NewLayerNorm(16, 1e-5)),
		)).
		MustAdd("empty", nn.NewDict()).
		MustAdd("act", nn.NewTanh()).
		MustAdd("head", newLinear(t, 16, 4, true, 5))

	out, err := Decompose(model, 0.5)
	require.NoError(t, err)

	linears := map[string]bool{"encoder.0": true, "encoder.2.proj": true, "head": true}
	var want []string
	for _, p := range paths(t, model) {
		want = append(want, p)
		if linears[p] {
			want = append(want, p+".0", p+".1")
		}
	}
	assert.Equal(t, want, paths(t, out))

	require.NoError(t, nn.Walk(out, func(path string, m nn.Module) error {
		if linears[path] {
			assert.IsType(t, &nn.Sequential{}, m, path)
		}
		return nil
	}))

	empty, ok := out.(nn.Container).Child("empty")
	require.True(t, ok)
	assert.IsType(t, &nn.Dict{}, empty)
	assert.Zero(t, empty.(*nn.Dict).Len())
}

func TestDecompose_NonTargetLeavesUntouched(t *testing.T) {
	norm := nn.NewLayerNorm(4, 1e-5)
	copy(norm.Gamma.Tensor().AsFloat32(), []float32{1, 2, 3, 4})

	model := nn.NewDict().
		MustAdd("fc", newLinear(t, 4, 4, true, 6)).
		MustAdd("norm", norm).
		MustAdd("act", nn.NewSigmoid())

	out, err := Decompose(model, 0.5)
	require.NoError(t, err)
	root := out.(nn.Container)

	got, _ := root.Child("norm")
	gotNorm := got.(*nn.LayerNorm)
	assert.True(t, norm.Gamma.Tensor().Equal(gotNorm.Gamma.Tensor()))
	assert.True(t, norm.Beta.Tensor().Equal(gotNorm.Beta.Tensor()))
	assert.Equal(t, norm.Epsilon, gotNorm.Epsilon)
	assert.NotSame(t, norm, gotNorm)

	act, _ := root.Child("act")
	assert.IsType(t, &nn.Sigmoid{}, act)
}

func TestDecompose_ZeroRatioPreservesForward(t *testing.T) {
	model := nn.NewSequential(
		newLinear(t, 12, 8, true, 7),
		nn.NewReLU(),
		newLinear(t, 8, 4, true, 8),
	)
	out, err := Decompose(model, 0)
	require.NoError(t, err)

	x := tensor.Randn(tensor.Shape{10, 12}, rand.New(rand.NewSource(9)))
	assert.Less(t, tensor.RelativeError(out.Forward(x), model.Forward(x)), 1e-4)
}

func TestDecompose_InvalidArguments(t *testing.T) {
	model := twoLevelModel(t)

	_, err := Decompose(model, 1)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Decompose(model, -0.1)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Decompose(nil, 0.5)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Decompose(nn.NewDict(), 0.5)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Decompose(newLinear(t, 2, 2, true, 1), 0.5)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = New(0.5, WithRankPolicy(RankPolicy(9)))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDecompose_ErrorCarriesPathAndLeavesInputIntact(t *testing.T) {
	bad := tensor.Ones(tensor.Shape{3, 3})
	bad.AsFloat32()[0] = float32(math.NaN())
	badLayer, err := nn.NewLinearFrom(bad, nil)
	require.NoError(t, err)

	model := nn.NewDict().
		MustAdd("ok", newLinear(t, 3, 3, true, 1)).
		MustAdd("block", nn.NewDict().MustAdd("broken", badLayer))
	before := snapshot(model)

	_, err = Decompose(model, 0.5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrComputation)

	var derr *Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "block.broken", derr.Path)

	ok, _ := model.Child("ok")
	assert.IsType(t, &nn.Linear{}, ok)
	for k, v := range model.StateDict() {
		assert.True(t, before[k].Equal(v), k)
	}
}

func TestDecompose_StrictPolicyFailsWholeRun(t *testing.T) {
	model := nn.NewDict().
		MustAdd("fine", newLinear(t, 8, 4, true, 1)).
		MustAdd("tall", newLinear(t, 2, 8, true, 2))

	d, err := New(0, WithRankPolicy(RankStrict))
	require.NoError(t, err)

	_, err = d.Run(model)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Contains(t, err.Error(), `"tall"`)
}

func TestRun_Report(t *testing.T) {
	model := twoLevelModel(t)

	d, err := New(0.5)
	require.NoError(t, err)
	res, err := d.Run(model)
	require.NoError(t, err)

	r := res.Report
	assert.NotEmpty(t, r.RunID)
	assert.Equal(t, 0.5, r.Ratio)
	assert.Equal(t, RankClamp, r.Policy)
	require.Len(t, r.Layers, 2)
	assert.Equal(t, "block1.fc", r.Layers[0].Path)
	assert.Equal(t, "fc2", r.Layers[1].Path)
	assert.Equal(t, nn.CountParameters(model), r.ParamsBefore)
	assert.Equal(t, nn.CountParameters(res.Model), r.ParamsAfter)
	assert.Equal(t, 10*20+20+20*5+5, r.ParamsBefore)
	assert.Equal(t, (10*10+20*10+20)+(20*2+5*2+5), r.ParamsAfter)
	assert.InDelta(t, float64(r.ParamsBefore)/float64(r.ParamsAfter), r.CompressionFactor(), 1e-12)
	assert.Zero(t, r.ClampedLayers())

	var buf bytes.Buffer
	require.NoError(t, r.Fprint(&buf))
	assert.Contains(t, buf.String(), "block1.fc")
	assert.Contains(t, buf.String(), "ratio=0.5")
}

func TestRun_ParallelMatchesSequential(t *testing.T) {
	model := nn.NewDict()
	for i, name := range []string{"a", "b", "c", "d", "e", "f"} {
		model.MustAdd(name, nn.NewDict().
			MustAdd("fc", newLinear(t, 6+i, 9, true, int64(i))).
			MustAdd("act", nn.NewReLU()))
	}

	seqD, err := New(0.4)
	require.NoError(t, err)
	parD, err := New(0.4, WithWorkers(4))
	require.NoError(t, err)

	seqRes, err := seqD.Run(model)
	require.NoError(t, err)
	parRes, err := parD.Run(model)
	require.NoError(t, err)

	assert.Equal(t, paths(t, seqRes.Model), paths(t, parRes.Model))

	seqSD, parSD := seqRes.Model.StateDict(), parRes.Model.StateDict()
	require.Len(t, parSD, len(seqSD))
	for k, v := range seqSD {
		assert.True(t, v.Equal(parSD[k]), k)
	}

	require.Len(t, parRes.Report.Layers, len(seqRes.Report.Layers))
	for i := range seqRes.Report.Layers {
		assert.Equal(t, seqRes.Report.Layers[i].Path, parRes.Report.Layers[i].Path)
	}
}

func TestRun_LoggingAndMetrics(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	reg := metrics.NewRegistry()

	model := twoLevelModel(t)
	model.MustAdd("act", nn.NewReLU())

	d, err := New(0.5, WithLogger(logger), WithMetrics(reg))
	require.NoError(t, err)
	_, err = d.Run(model)
	require.NoError(t, err)

	out := logs.String()
	assert.Equal(t, 2, strings.Count(out, "factorized linear layer"))
	assert.Contains(t, out, "path=block1.fc")
	assert.Contains(t, out, "decomposition complete")

	var m dto.Metric
	require.NoError(t, reg.LayersFactorizedTotal.Write(&m))
	assert.Equal(t, 2.0, m.GetCounter().GetValue())

	m.Reset()
	require.NoError(t, reg.LeavesSkippedTotal.WithLabelValues("ReLU").Write(&m))
	assert.Equal(t, 1.0, m.GetCounter().GetValue())

	m.Reset()
	require.NoError(t, reg.RunsTotal.WithLabelValues("success").Write(&m))
	assert.Equal(t, 1.0, m.GetCounter().GetValue())

	_, err = d.Run(nil)
	require.Error(t, err)
	m.Reset()
	require.NoError(t, reg.RunsTotal.WithLabelValues("error").Write(&m))
	assert.Equal(t, 1.0, m.GetCounter().GetValue())
}

// shrinkingDict drops its last child name from every listing after the first.
type shrinkingDict struct {
	*nn.Dict
	calls int
}

func (s *shrinkingDict) ChildNames() []string {
	s.calls++
	names := s.Dict.ChildNames()
	if s.calls > 1 && len(names) > 0 {
		return names[:len(names)-1]
	}
	return names
}

func (s *shrinkingDict) Clone() nn.Module {
	return &shrinkingDict{Dict: s.Dict.Clone().(*nn.Dict)}
}

// lockedDict refuses every SetChild.
type lockedDict struct {
	*nn.Dict
}

func (l *lockedDict) SetChild(string, nn.Module) error {
	return errors.New("locked")
}

func (l *lockedDict) Clone() nn.Module {
	return &lockedDict{Dict: l.Dict.Clone().(*nn.Dict)}
}

func TestDecompose_StructuralMismatch(t *testing.T) {
	t.Run("child count changes", func(t *testing.T) {
		model := &shrinkingDict{Dict: nn.NewDict().
			MustAdd("a", newLinear(t, 4, 4, true, 1)).
			MustAdd("b", newLinear(t, 4, 4, true, 2))}

		_, err := Decompose(model, 0.5)
		assert.ErrorIs(t, err, ErrStructuralMismatch)
	})

	t.Run("replacement rejected", func(t *testing.T) {
		inner := &lockedDict{Dict: nn.NewDict().MustAdd("fc", newLinear(t, 4, 4, true, 3))}
		model := nn.NewDict().MustAdd("inner", inner)

		_, err := Decompose(model, 0.5)
		assert.ErrorIs(t, err, ErrStructuralMismatch)

		var derr *Error
		require.True(t, errors.As(err, &derr))
		assert.Equal(t, "inner.fc", derr.Path)
	})
}

// gappyDict reports an extra child "gap" whose module is nil.
type gappyDict struct {
	*nn.Dict
}

func (g *gappyDict) ChildNames() []string {
	return append(g.Dict.ChildNames(), "gap")
}

func (g *gappyDict) Child(name string) (nn.Module, bool) {
	if name == "gap" {
		return nil, true
	}
	return g.Dict.Child(name)
}

func TestDecompose_NilChild(t *testing.T) {
	inner := &gappyDict{Dict: nn.NewDict().MustAdd("fc", newLinear(t, 3, 4, true, 1))}
	model := nn.NewDict().MustAdd("inner", inner)

	var err error
	require.NotPanics(t, func() {
		_, err = Decompose(model, 0.5)
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	var derr *Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "inner.gap", derr.Path)

	assert.PanicsWithValue(t, "NewSequential: module 1 is nil", func() {
		nn.NewSequential(nn.NewLinear(3, 4), nil)
	})
}

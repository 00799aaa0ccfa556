package registration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volreg/internal/series"
	"volreg/pkg/regerr"
	"volreg/pkg/transform"
	"volreg/pkg/volume"
)

// seriesOf stacks 3D volumes into a rank-4 series.
func seriesOf(t *testing.T, vols ...*volume.Image) *volume.Image {
	t.Helper()
	require.NotEmpty(t, vols)
	ext := vols[0].Extents()
	out, err := volume.NewWithDims([]int{ext[0], ext[1], ext[2], len(vols)}, volume.Float64)
	require.NoError(t, err)
	n3 := vols[0].NumVoxels()
	for i, v := range vols {
		require.Equal(t, ext, v.Extents())
		copy(out.Data()[i*n3:(i+1)*n3], v.Data())
	}
	return out
}

// TestDeformableIdenticalImages verifies the trivial case: a zero field,
// perfect similarity and an output equal to the reference.
func TestDeformableIdenticalImages(t *testing.T) {
	img := blobImage(t, 8, 3.5, 3.5, 3.5, 2)
	reg := NewDeformable()
	require.NoError(t, reg.SetReferenceImage(img))
	require.NoError(t, reg.SetFloatingImage(img))
	require.NoError(t, reg.Update())

	sim, err := reg.Similarity()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-9)

	disp, err := reg.DisplacementFieldForward()
	require.NoError(t, err)
	for _, v := range disp.Field.Data() {
		assert.InDelta(t, 0.0, v, 1e-9)
	}

	back, err := reg.DisplacementFieldBackward()
	require.NoError(t, err)
	for _, v := range back.Field.Data() {
		assert.InDelta(t, 0.0, v, 1e-9)
	}

	out, err := reg.Output()
	require.NoError(t, err)
	for i, v := range out.Data() {
		assert.InDelta(t, img.Data()[i], v, 1e-9)
	}
}

// compactImage builds an 8^3 volume whose support stays away from the
// upper x border, so a one-voxel shift pushes nothing outside the grid.
func compactImage(t *testing.T) *volume.Image {
	t.Helper()
	img := volume.New3D(8, 8, 8)
	for z := 0; z < 8; z++ {
		for y := 0; y < 8; y++ {
			for x := 2; x <= 4; x++ {
				img.Set(x, y, z, float64(x+10*y+3*z))
			}
		}
	}
	return img
}

// TestDeformableInitialAffine verifies a seeding transform that already
// explains the motion makes the run converge immediately.
func TestDeformableInitialAffine(t *testing.T) {
	ref := compactImage(t)
	flo := shiftedX(t, ref)

	seed := transform.Identity()
	seed.SetAt(0, 3, 1)

	reg := NewDeformable()
	require.NoError(t, reg.SetReferenceImage(ref))
	require.NoError(t, reg.SetFloatingImage(flo))
	reg.SetInitialAffineTransformation(seed)
	require.NoError(t, reg.Update())

	disp, err := reg.DisplacementFieldForward()
	require.NoError(t, err)
	v := disp.Field.VectorAt(3, 3, 3)
	assert.InDelta(t, 1.0, v[0], 1e-9)
	assert.InDelta(t, 0.0, v[1], 1e-9)
	assert.InDelta(t, 0.0, v[2], 1e-9)

	sim, err := reg.Similarity()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-9)
}

// TestDeformableSeriesTimePoints verifies 4D inputs with explicit time
// point selection.
func TestDeformableSeriesTimePoints(t *testing.T) {
	target := blobImage(t, 6, 2.5, 2.5, 2.5, 1.5)
	other := blobImage(t, 6, 1.5, 2.5, 2.5, 1.5)
	flo4 := seriesOf(t, other, target)
	require.Equal(t, 2, series.Volumes(flo4))

	reg := NewDeformable()
	require.NoError(t, reg.SetReferenceImage(target))
	require.NoError(t, reg.SetFloatingImage(flo4))
	reg.SetFloatingTimePoint(2)
	require.NoError(t, reg.Update())

	sim, err := reg.Similarity()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-9)
}

// TestDeformableTimePointOutOfRange verifies a bad time point fails the
// run with a configuration error.
func TestDeformableTimePointOutOfRange(t *testing.T) {
	img := blobImage(t, 6, 2.5, 2.5, 2.5, 1.5)
	reg := NewDeformable()
	require.NoError(t, reg.SetReferenceImage(img))
	require.NoError(t, reg.SetFloatingImage(img))
	reg.SetReferenceTimePoint(3)

	err := reg.Update()
	assert.Equal(t, regerr.ConfigurationError, regerr.KindOf(err))
}

// TestDeformableRejectsTensorRank verifies rank-5 inputs are refused.
func TestDeformableRejectsTensorRank(t *testing.T) {
	five, err := volume.NewWithDims([]int{4, 4, 4, 1, 3}, volume.Float64)
	require.NoError(t, err)

	reg := NewDeformable()
	err = reg.SetReferenceImage(five)
	assert.Equal(t, regerr.TypeMismatch, regerr.KindOf(err))
}

// TestDeformableIterationCap verifies a one-iteration budget on a real
// displacement surfaces as a registration failure.
func TestDeformableIterationCap(t *testing.T) {
	ref := blobImage(t, 8, 3.5, 3.5, 3.5, 2)
	flo := shiftedX(t, ref)

	reg := NewDeformable()
	require.NoError(t, reg.SetReferenceImage(ref))
	require.NoError(t, reg.SetFloatingImage(flo))
	reg.SetParameterFile(writeParams(t, "deformable:\n  maxIterations: 1\n"))

	err := reg.Update()
	assert.Equal(t, regerr.RegistrationFailure, regerr.KindOf(err))
	_, err = reg.Output()
	assert.Equal(t, regerr.ConfigurationError, regerr.KindOf(err))
}

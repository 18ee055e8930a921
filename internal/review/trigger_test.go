package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/get-convex/crev/internal/models"
)

func TestMaybeTransition(t *testing.T) {
	t.Run("auto-approve on pass", func(t *testing.T) {
		tr := MaybeTransition("pkg1", models.ReviewStatusPassed,
			models.ReviewPolicy{AutoApproveOnPass: true}, false)
		require.NotNil(t, tr)
		assert.Equal(t, "pkg1", tr.PackageID)
		assert.Equal(t, models.SubmissionStatusApproved, tr.To)
	})

	t.Run("pass without policy is a no-op", func(t *testing.T) {
		tr := MaybeTransition("pkg1", models.ReviewStatusPassed, models.ReviewPolicy{}, false)
		assert.Nil(t, tr)
	})

	t.Run("auto-reject on critical failure", func(t *testing.T) {
		tr := MaybeTransition("pkg1", models.ReviewStatusFailed,
			models.ReviewPolicy{AutoRejectOnFail: true}, true)
		require.NotNil(t, tr)
		assert.Equal(t, models.SubmissionStatusRejected, tr.To)
	})

	t.Run("failed without critical failure is a no-op", func(t *testing.T) {
		// Cannot occur under Derive's invariant, but the trigger must not
		// assume its caller honors that.
		tr := MaybeTransition("pkg1", models.ReviewStatusFailed,
			models.ReviewPolicy{AutoRejectOnFail: true}, false)
		assert.Nil(t, tr)
	})

	t.Run("failed without policy is a no-op", func(t *testing.T) {
		tr := MaybeTransition("pkg1", models.ReviewStatusFailed, models.ReviewPolicy{}, true)
		assert.Nil(t, tr)
	})

	t.Run("partial never transitions", func(t *testing.T) {
		tr := MaybeTransition("pkg1", models.ReviewStatusPartial,
			models.ReviewPolicy{AutoApproveOnPass: true, AutoRejectOnFail: true}, false)
		assert.Nil(t, tr)
	})

	t.Run("error never transitions", func(t *testing.T) {
		tr := MaybeTransition("pkg1", models.ReviewStatusError,
			models.ReviewPolicy{AutoApproveOnPass: true, AutoRejectOnFail: true}, true)
		assert.Nil(t, tr)
	})
}

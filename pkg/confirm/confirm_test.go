package confirm

import (
	"testing"
	"time"

	"github.com/QUSEIT/simacode-sub000/pkg/session"
	"github.com/stretchr/testify/require"
)

func TestSubmitConfirmationDeliversConfirm(t *testing.T) {
	c := New()
	ch := c.RequestConfirmation("s1", time.Second)
	require.True(t, c.HasPending("s1"))

	ok := c.SubmitConfirmation("s1", ActionConfirm, nil, "")
	require.True(t, ok)

	v := <-ch
	require.Equal(t, StatusConfirmed, v.Status)
	require.False(t, c.HasPending("s1"))
}

func TestSubmitConfirmationModifyWithTasks(t *testing.T) {
	c := New()
	ch := c.RequestConfirmation("s2", time.Second)

	tasks := []session.Task{{ID: "t1", Tool: "shell"}}
	ok := c.SubmitConfirmation("s2", ActionModify, tasks, "use shell instead")
	require.True(t, ok)

	v := <-ch
	require.Equal(t, StatusModified, v.Status)
	require.Len(t, v.ModifiedTasks, 1)
}

func TestSubmitConfirmationModifyWithNoTasksDegradesToCancel(t *testing.T) {
	c := New()
	ch := c.RequestConfirmation("s3", time.Second)

	ok := c.SubmitConfirmation("s3", ActionModify, nil, "")
	require.True(t, ok)

	v := <-ch
	require.Equal(t, StatusCancelled, v.Status)
}

func TestSubmitConfirmationModifyWithFreeTextOnlyStaysModified(t *testing.T) {
	c := New()
	ch := c.RequestConfirmation("s2b", time.Second)

	ok := c.SubmitConfirmation("s2b", ActionModify, nil, "add error handling")
	require.True(t, ok)

	v := <-ch
	require.Equal(t, StatusModified, v.Status)
	require.Empty(t, v.ModifiedTasks)
	require.Equal(t, "add error handling", v.FreeText)
}

func TestSubmitConfirmationForUnknownSessionReturnsFalse(t *testing.T) {
	c := New()
	ok := c.SubmitConfirmation("ghost", ActionConfirm, nil, "")
	require.False(t, ok)
}

func TestRequestConfirmationTimesOut(t *testing.T) {
	c := New()
	ch := c.RequestConfirmation("s4", 10*time.Millisecond)

	select {
	case v := <-ch:
		require.Equal(t, StatusTimedOut, v.Status)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for timeout verdict")
	}
	require.False(t, c.HasPending("s4"))
}

func TestReRequestIncrementsRound(t *testing.T) {
	c := New()
	c.RequestConfirmation("s5", time.Second)
	require.Equal(t, 1, c.Round("s5"))

	c.RequestConfirmation("s5", time.Second)
	require.Equal(t, 2, c.Round("s5"))
}

func TestSubmitAfterTimeoutIsNoop(t *testing.T) {
	c := New()
	ch := c.RequestConfirmation("s6", 5*time.Millisecond)
	<-ch

	ok := c.SubmitConfirmation("s6", ActionConfirm, nil, "")
	require.False(t, ok)
}

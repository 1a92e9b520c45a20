package presence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

// gatedLoad returns a loadFunc that blocks until release is closed and then returns value.
func gatedLoad(value []byte) (load loadFunc, started <-chan struct{}, release chan<- struct{}) {
	startedCh := make(chan struct{})
	releaseCh := make(chan struct{})
	return func(ctx context.Context, _ string) ([]byte, error) {
		close(startedCh)
		<-releaseCh
		return value, nil
	}, startedCh, releaseCh
}

func TestFeedSkipsValuesOlderThanInitialLoad(t *testing.T) {
	f := newFeed()
	defer f.close()

	load, started, release := gatedLoad([]byte(`"carol"`))
	fn, ch := collect()
	cancel := f.watch("users/bob/incoming", load, fn)
	defer cancel()

	<-started
	f.publish("users/bob/incoming", []byte(`"carol"`))
	f.publish("users/bob/incoming", []byte(`"alice"`))
	f.publish("users/bob/incoming", []byte(`"carol"`))
	close(release)

	assert.Equal(t, `"carol"`, string(next(t, ch)))
	expectSilence(t, ch)

	f.publish("users/bob/incoming", nil)
	assert.Nil(t, next(t, ch))
}

func TestFeedKeepsValuesNewerThanInitialLoad(t *testing.T) {
	f := newFeed()
	defer f.close()

	load, started, release := gatedLoad([]byte(`"alice"`))
	fn, ch := collect()
	cancel := f.watch("users/bob/incoming", load, fn)
	defer cancel()

	<-started
	f.publish("users/bob/incoming", []byte(`"carol"`))
	f.publish("users/bob/incoming", []byte(`"alice"`))
	f.publish("users/bob/incoming", []byte(`"dave"`))
	close(release)

	assert.Equal(t, `"alice"`, string(next(t, ch)))
	assert.Equal(t, `"dave"`, string(next(t, ch)))
	expectSilence(t, ch)
}

func TestFeedDeliversQueueWhenLoadMatchesNothing(t *testing.T) {
	f := newFeed()
	defer f.close()

	load, started, release := gatedLoad(nil)
	fn, ch := collect()
	cancel := f.watch("users/bob/connId", load, fn)
	defer cancel()

	<-started
	f.publish("users/bob/connId", []byte(`"x1"`))
	close(release)

	assert.Nil(t, next(t, ch))
	assert.Equal(t, `"x1"`, string(next(t, ch)))
	expectSilence(t, ch)
}

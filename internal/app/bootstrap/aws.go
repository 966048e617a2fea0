package bootstrap

import (
	"context"
	"errors"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// AWSLoader produces the shared AWS SDK config. Binaries pass
// mainconfig.LoadAWSConfig bound to their config.
type AWSLoader func(ctx context.Context) (aws.Config, error)

var errNoAWSLoader = errors.New("bootstrap: aws config loader not provided")

// lazyAWS loads the AWS config at most once, and only when a component
// actually needs it.
type lazyAWS struct {
	load AWSLoader

	once sync.Once
	cfg  aws.Config
	err  error
}

func newLazyAWS(load AWSLoader) *lazyAWS {
	return &lazyAWS{load: load}
}

func (l *lazyAWS) Config(ctx context.Context) (aws.Config, error) {
	if l == nil || l.load == nil {
		return aws.Config{}, errNoAWSLoader
	}
	l.once.Do(func() {
		l.cfg, l.err = l.load(ctx)
	})
	return l.cfg, l.err
}

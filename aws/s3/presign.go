// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package s3 finds objects in an S3 bucket and presigns URLs to them, so
// that they can be imported as a BatchURLFiles source.
package s3

import (
	"context"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/maruel/natural"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of URLs presigned at once.
const DefaultConcurrency = 8

// Option is a functional option for a Presigner.
type Option func(p *Presigner) error

// OptBucket sets the bucket objects are found in.
func OptBucket(bucket string) Option {
	return func(p *Presigner) error {
		p.bucket = bucket
		return nil
	}
}

// OptRegion sets the AWS region of the bucket.
func OptRegion(region string) Option {
	return func(p *Presigner) error {
		p.region = region
		return nil
	}
}

// OptProfile sets the shared config profile used for credentials.
func OptProfile(profile string) Option {
	return func(p *Presigner) error {
		p.profile = profile
		return nil
	}
}

// OptConcurrency sets how many URLs are presigned at once.
func OptConcurrency(n int) Option {
	return func(p *Presigner) error {
		if n < 1 {
			return errors.Errorf("concurrency must be positive, got %d", n)
		}
		p.concurrency = n
		return nil
	}
}

// OptClient uses client instead of building one from a session.
func OptClient(client s3iface.S3API) Option {
	return func(p *Presigner) error {
		p.client = client
		return nil
	}
}

// OptProgress writes a progress bar for listing and presigning to w.
func OptProgress(w io.Writer) Option {
	return func(p *Presigner) error {
		p.progress = w
		return nil
	}
}

// Presigner creates presigned GET URLs for objects in one bucket.
type Presigner struct {
	bucket      string
	region      string
	profile     string
	concurrency int
	progress    io.Writer

	client s3iface.S3API
}

// NewPresigner returns a Presigner with the options applied. Without
// OptClient it builds an S3 client from the shared AWS config.
func NewPresigner(opts ...Option) (*Presigner, error) {
	p := &Presigner{concurrency: DefaultConcurrency}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, errors.Wrap(err, "applying option")
		}
	}
	if p.bucket == "" {
		return nil, errors.New("a bucket is required")
	}
	if p.client == nil {
		sess, err := session.NewSessionWithOptions(session.Options{
			Config:            aws.Config{Region: aws.String(p.region)},
			Profile:           p.profile,
			SharedConfigState: session.SharedConfigEnable,
		})
		if err != nil {
			return nil, errors.Wrap(err, "getting aws session")
		}
		p.client = s3.New(sess)
	}
	return p, nil
}

func (p *Presigner) bar(max int64, desc string) *progressbar.ProgressBar {
	if p.progress == nil {
		return nil
	}
	return progressbar.NewOptions64(max,
		progressbar.OptionSetWriter(p.progress),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowCount(),
	)
}

// FindFiles lists the keys under prefix that end with suffix. With sorted
// set the keys are in natural order, so "file-2" comes before "file-10".
func (p *Presigner) FindFiles(ctx context.Context, prefix, suffix string, sorted bool) ([]string, error) {
	bar := p.bar(-1, "Finding files ending with '"+suffix+"' in '"+p.bucket+"/"+prefix+"'")
	var keys []string
	err := p.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, last bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			if strings.HasSuffix(key, suffix) {
				keys = append(keys, key)
			}
			if bar != nil {
				_ = bar.Add(1)
			}
		}
		return true
	})
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "listing objects in %s/%s", p.bucket, prefix)
	}
	if sorted {
		sort.Slice(keys, func(i, j int) bool { return natural.Less(keys[i], keys[j]) })
	}
	return keys, nil
}

// PresignURL returns a URL that GETs key until expiration elapses.
func (p *Presigner) PresignURL(key string, expiration time.Duration) (string, error) {
	req, _ := p.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	u, err := req.Presign(expiration)
	return u, errors.Wrapf(err, "presigning %s", key)
}

// PresignURLs presigns every key FindFiles returns. The URLs are in the same
// order as the keys.
func (p *Presigner) PresignURLs(ctx context.Context, prefix, suffix string, expiration time.Duration, sorted bool) ([]string, error) {
	keys, err := p.FindFiles(ctx, prefix, suffix, sorted)
	if err != nil {
		return nil, err
	}
	urls := make([]string, len(keys))
	bar := p.bar(int64(len(keys)), "Presigning URLs")
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			u, err := p.PresignURL(key, expiration)
			if err != nil {
				return err
			}
			urls[i] = u
			if bar != nil {
				_ = bar.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return urls, nil
}

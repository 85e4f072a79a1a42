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

package s3

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
)

// Main contains the configuration for presigning the URLs of a set of S3
// objects.
type Main struct {
	Bucket      string        `help:"S3 bucket name from which to presign objects."`
	Prefix      string        `help:"Only objects in the bucket matching this prefix will be used."`
	Suffix      string        `help:"Only objects whose key ends with this suffix will be used."`
	Region      string        `help:"AWS region to use."`
	Profile     string        `help:"AWS shared config profile to use."`
	Expiration  time.Duration `help:"How long the presigned URLs remain valid."`
	Concurrency int           `help:"Number of URLs to presign at once."`
	NoSort      bool          `help:"Keep the listing order instead of natural sorting keys."`
	Verbose     bool          `help:"Show progress on stderr."`
}

// NewMain gets a new Main with the default configuration.
func NewMain() *Main {
	return &Main{
		Suffix:      ".csv",
		Region:      "us-east-1",
		Expiration:  12 * time.Hour,
		Concurrency: DefaultConcurrency,
	}
}

// Run prints the presigned URLs to stdout, one per line.
func (m *Main) Run() error {
	return m.RunTo(context.Background(), os.Stdout)
}

// RunTo prints the presigned URLs to w, one per line.
func (m *Main) RunTo(ctx context.Context, w io.Writer, opts ...Option) error {
	opts = append([]Option{
		OptBucket(m.Bucket),
		OptRegion(m.Region),
		OptProfile(m.Profile),
		OptConcurrency(m.Concurrency),
	}, opts...)
	if m.Verbose {
		opts = append(opts, OptProgress(os.Stderr))
	}
	p, err := NewPresigner(opts...)
	if err != nil {
		return errors.Wrap(err, "getting presigner")
	}
	urls, err := p.PresignURLs(ctx, m.Prefix, m.Suffix, m.Expiration, !m.NoSort)
	if err != nil {
		return errors.Wrap(err, "presigning urls")
	}
	for _, u := range urls {
		if _, err := fmt.Fprintln(w, u); err != nil {
			return errors.Wrap(err, "writing url")
		}
	}
	return nil
}

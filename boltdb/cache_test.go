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

package boltdb

import (
	"io/ioutil"
	"testing"
	"time"

	"github.com/generalsystem/dfi"
)

func TestSchemaCache(t *testing.T) {
	boltFile := tempFileName(t)
	sc, err := NewSchemaCache(boltFile, time.Minute)
	if err != nil {
		t.Fatalf("couldn't get bolt db: %v", err)
	}
	now := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	sc.SetClock(func() time.Time { return now })

	yes := true
	schema := dfi.Schema{
		"speed":   {Type: "number", Signed: &yes},
		"vehicle": {Type: "enum", Values: []string{"car", "bus"}},
	}
	if _, ok, err := sc.Get("ds"); err != nil || ok {
		t.Fatalf("expected miss on empty cache, got ok=%v err=%v", ok, err)
	}
	if err := sc.Put("ds", schema); err != nil {
		t.Fatalf("putting schema: %v", err)
	}
	got, ok, err := sc.Get("ds")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if len(got) != 2 || got["vehicle"].Values[1] != "bus" || !*got["speed"].Signed {
		t.Fatalf("unexpected schema: %+v", got)
	}

	if err := sc.Close(); err != nil {
		t.Fatalf("closing bolt db: %v", err)
	}
	sc, err = NewSchemaCache(boltFile, time.Minute)
	if err != nil {
		t.Fatalf("reopening cache: %v", err)
	}
	defer sc.Close()
	sc.SetClock(func() time.Time { return now.Add(30 * time.Second) })
	if _, ok, _ := sc.Get("ds"); !ok {
		t.Fatalf("after reopen, expected hit")
	}

	sc.SetClock(func() time.Time { return now.Add(time.Minute) })
	if _, ok, _ := sc.Get("ds"); ok {
		t.Fatalf("expected entry to expire")
	}

	sc.SetClock(func() time.Time { return now })
	if err := sc.Delete("ds"); err != nil {
		t.Fatalf("deleting: %v", err)
	}
	if _, ok, _ := sc.Get("ds"); ok {
		t.Fatalf("expected miss after delete")
	}
}

func tempFileName(t *testing.T) string {
	tf, err := ioutil.TempFile("", "")
	if err != nil {
		t.Fatalf("couldn't get temp file: %v", err)
	}
	err = tf.Close()
	if err != nil {
		t.Fatalf("couldn't close temp file: %v", err)
	}
	return tf.Name()
}

// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package util groups a bunch of common helper functions used by commands.
package util

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"gvisor.dev/bootmap/pkg/errors"
	"gvisor.dev/bootmap/pkg/log"
)

// ErrorLogger is where error messages should be written to, in addition to
// the log. Messages are written as one JSON object per line so that a boot
// driver can pick them up.
var ErrorLogger io.Writer

type jsonError struct {
	Msg   string    `json:"msg"`
	Kind  string    `json:"kind,omitempty"`
	Level string    `json:"level"`
	Time  time.Time `json:"time"`
}

// Writef writes a message to stderr and to the log.
func Writef(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if _, err := fmt.Fprintln(os.Stderr, msg); err != nil {
		log.Warningf("Error writing to stderr: %v", err)
	}
	log.Infof("%s", msg)
}

// Fatalf logs to stderr and exits with a failure status code.
func Fatalf(format string, args ...any) {
	writeFatal("", fmt.Sprintf(format, args...))
	os.Exit(128)
}

// Abort reports err and exits with a failure status code. Errors from
// the fatal taxonomy are tagged with their kind.
func Abort(context string, err error) {
	kind := ""
	if k, ok := errors.KindOf(err); ok {
		kind = k.String()
	}
	writeFatal(kind, fmt.Sprintf("%s: %v", context, err))
	os.Exit(128)
}

func writeFatal(kind, msg string) {
	log.Warningf("FATAL ERROR: %s", msg)
	fmt.Fprintln(os.Stderr, msg)

	if ErrorLogger != nil {
		b, err := json.Marshal(jsonError{
			Msg:   msg,
			Kind:  kind,
			Level: "error",
			Time:  time.Now(),
		})
		if err != nil {
			log.Warningf("Error marshaling error message: %v", err)
			return
		}
		_, _ = ErrorLogger.Write(append(b, '\n'))
	}
}

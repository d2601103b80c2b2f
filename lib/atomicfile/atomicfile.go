/*
 * Copyright (c) SAS Institute Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package atomicfile writes output documents so that a failed or interrupted
// run never leaves a partial file behind.
package atomicfile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

type AtomicFile interface {
	io.WriteCloser
	// Commit replaces the destination with what was written. Close without
	// Commit discards it.
	Commit() error
}

type atomicFile struct {
	name     string
	mode     os.FileMode
	tempfile *os.File
}

// New starts writing a replacement for name in the same directory. An
// existing file keeps its permissions.
func New(name string) (AtomicFile, error) {
	mode := os.FileMode(0o644)
	if st, err := os.Stat(name); err == nil {
		mode = st.Mode().Perm()
	}
	tempfile, err := os.CreateTemp(filepath.Dir(name), filepath.Base(name)+".tmp")
	if err != nil {
		return nil, err
	}
	return &atomicFile{name: name, mode: mode, tempfile: tempfile}, nil
}

func (f *atomicFile) Write(d []byte) (int, error) {
	if f.tempfile == nil {
		return 0, os.ErrClosed
	}
	return f.tempfile.Write(d)
}

func (f *atomicFile) Close() error {
	if f.tempfile == nil {
		return nil
	}
	f.tempfile.Close()
	os.Remove(f.tempfile.Name())
	f.tempfile = nil
	return nil
}

func (f *atomicFile) Commit() error {
	if f.tempfile == nil {
		return errors.New("file is closed")
	}
	tempname := f.tempfile.Name()
	err := f.tempfile.Chmod(f.mode)
	if err == nil {
		err = f.tempfile.Sync()
	}
	if err2 := f.tempfile.Close(); err == nil {
		err = err2
	}
	f.tempfile = nil
	if err != nil {
		os.Remove(tempname)
		return err
	}
	// rename can't overwrite on windows
	if err := os.Remove(f.name); err != nil && !os.IsNotExist(err) {
		os.Remove(tempname)
		return err
	}
	return os.Rename(tempname, f.name)
}

type direct struct {
	io.Writer
	closer io.Closer
}

func (d direct) Close() error {
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}

func (d direct) Commit() error {
	return d.Close()
}

// WriteAny picks how to write path: stdout for "" or "-", directly for pipes
// and devices, otherwise write and rename
func WriteAny(path string) (AtomicFile, error) {
	if path == "" || path == "-" {
		return direct{Writer: os.Stdout}, nil
	}
	if st, err := os.Stat(path); err == nil && !st.Mode().IsRegular() {
		f, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err != nil {
			return nil, err
		}
		return direct{Writer: f, closer: f}, nil
	}
	return New(path)
}

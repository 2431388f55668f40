package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.viam.com/test"
)

func TestStillName(t *testing.T) {
	at := time.Date(2024, 3, 9, 7, 5, 2, 45*int(time.Millisecond), time.Local)
	test.That(t, StillName(at), test.ShouldEqual, "still_2024_03_09_07_05_02_045.jpg")
}

func TestSaveAndList(t *testing.T) {
	s, err := New(t.TempDir())
	test.That(t, err, test.ShouldBeNil)
	defer s.Close()

	name, err := s.LatestStillName()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, name, test.ShouldBeEmpty)

	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local)
	p1, err := s.SaveStill([]byte("first"), at)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, filepath.Dir(p1), test.ShouldEqual, s.ImageDir())
	_, err = s.SaveStill([]byte("second"), at.Add(1500*time.Millisecond))
	test.That(t, err, test.ShouldBeNil)

	name, err = s.LatestStillName()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, name, test.ShouldEqual, "still_2024_01_01_12_00_01_500.jpg")

	data, err := s.GetStill(name)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldEqual, "second")

	files, err := s.ListStills()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, files, test.ShouldHaveLength, 2)
	test.That(t, files[0].Name, test.ShouldEqual, filepath.Base(p1))
	test.That(t, files[0].Size, test.ShouldEqual, "5 B")

	info, err := s.loadImageInfo()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, info.Count, test.ShouldEqual, 2)
}

func TestReopenKeepsIndex(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	test.That(t, err, test.ShouldBeNil)
	_, err = s.SaveStill([]byte("x"), time.Now())
	test.That(t, err, test.ShouldBeNil)

	s, err = New(dir)
	test.That(t, err, test.ShouldBeNil)
	name, err := s.LatestStillName()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, name, test.ShouldNotBeEmpty)
}

func TestGetStillRejectsPaths(t *testing.T) {
	s, err := New(t.TempDir())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, os.WriteFile(filepath.Join(s.Root(), "secret.jpg"), []byte("x"), 0o600), test.ShouldBeNil)

	for _, name := range []string{"../secret.jpg", "", "info.json", "missing.jpg"} {
		_, err := s.GetStill(name)
		test.That(t, errors.Is(err, ErrNotFound), test.ShouldBeTrue)
	}
	_, err = s.SaveStill(nil, time.Now())
	test.That(t, err, test.ShouldNotBeNil)
}

package identity_test

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/uuid"
	"github.com/okian/worksight/internal/adapters/identity"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLoad(t *testing.T) {
	Convey("Given a fresh data directory", t, func() {
		dir := filepath.Join(t.TempDir(), "data")

		Convey("When an override is configured", func() {
			id, err := identity.Load(dir, "  laptop-7 ")

			Convey("Then it wins and nothing is written", func() {
				So(err, ShouldBeNil)
				So(id.EndpointID(), ShouldEqual, "laptop-7")
				_, statErr := os.Stat(dir)
				So(os.IsNotExist(statErr), ShouldBeTrue)
			})
		})

		Convey("When the override would escape the data directory", func() {
			for _, bad := range []string{"../etc", "a/b", `a\b`, ".."} {
				_, err := identity.Load(dir, bad)
				So(errors.Is(err, identity.ErrInvalidID), ShouldBeTrue)
			}
		})

		Convey("When no override is configured", func() {
			first, err := identity.Load(dir, "")
			So(err, ShouldBeNil)
			second, err := identity.Load(dir, "")
			So(err, ShouldBeNil)

			Convey("Then a UUID is generated once and reused", func() {
				_, parseErr := uuid.Parse(first.EndpointID())
				So(parseErr, ShouldBeNil)
				So(second, ShouldEqual, first)
			})
		})
	})
}

func TestCollect(t *testing.T) {
	Convey("Given the current host", t, func() {
		info := identity.Collect()

		Convey("Then the snapshot is populated", func() {
			So(info.OSName, ShouldEqual, runtime.GOOS)
			So(info.Machine, ShouldEqual, runtime.GOARCH)
			So(info.Hostname, ShouldNotBeEmpty)
			So(info.Username, ShouldNotBeEmpty)
			So(info.IPAddress, ShouldNotBeEmpty)
			So(info.Timestamp.IsZero(), ShouldBeFalse)
		})
	})
}

func TestDisk(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("disk usage is only implemented on linux and darwin")
	}
	Convey("Given a temp directory", t, func() {
		du, err := identity.Disk(t.TempDir())

		Convey("Then usage is within bounds", func() {
			So(err, ShouldBeNil)
			So(du.TotalBytes, ShouldBeGreaterThan, 0)
			So(du.FreeBytes, ShouldBeLessThanOrEqualTo, du.TotalBytes)
			So(du.UsedPercent, ShouldBeBetweenOrEqual, 0, 100)
		})
	})
}

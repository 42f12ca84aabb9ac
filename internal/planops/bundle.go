package planops

import (
	"archive/tar"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/fpw-project/fpw/internal/types"
)

// Bundle entry names.
const (
	BundlePlan       = "plan.json"
	BundleUPlan      = "uplan.json"
	BundleTrajectory = "trajectory/"
)

// BundleExt is the file extension for downloaded bundles.
const BundleExt = ".tar.zst"

// Download writes a zstd-compressed tar bundle of the plan to w: plan.json,
// uplan.json when an authorization document exists, and the trajectory CSV
// when the plan has one and an artifact source is configured.
func (s *Service) Download(ctx context.Context, id string, w io.Writer) error {
	return s.guard.Track(types.OpDownloading, id, func() error {
		plan, err := s.store.GetPlan(ctx, id)
		if err != nil {
			return err
		}
		return s.writeBundle(ctx, plan, w)
	})
}

func (s *Service) writeBundle(ctx context.Context, plan *types.FlightPlan, w io.Writer) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)
	mod := plan.UpdatedAt
	if mod.IsZero() {
		mod = time.Now().UTC()
	}

	planJSON, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding plan: %w", err)
	}
	if err := addBytes(tw, BundlePlan, planJSON, mod); err != nil {
		return err
	}
	if plan.AuthorizationDocument != nil {
		docJSON, err := json.MarshalIndent(plan.AuthorizationDocument, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding authorization document: %w", err)
		}
		if err := addBytes(tw, BundleUPlan, docJSON, mod); err != nil {
			return err
		}
	}
	if plan.HasTrajectory() && s.artifacts != nil {
		rc, err := s.artifacts.Open(ctx, *plan.TrajectoryRef)
		if err != nil {
			return err
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return fmt.Errorf("reading trajectory: %w", err)
		}
		if err := addBytes(tw, BundleTrajectory+path.Base(*plan.TrajectoryRef), data, mod); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("closing tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("closing zstd: %w", err)
	}
	return nil
}

func addBytes(tw *tar.Writer, name string, data []byte, mod time.Time) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: mod,
		Format:  tar.FormatPAX,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing %s header: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// ReadBundle decodes a bundle written by Download into a name-to-content map.
func ReadBundle(r io.Reader) (map[string][]byte, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer zr.Close()

	out := make(map[string][]byte)
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading bundle: %w", err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", hdr.Name, err)
		}
		out[hdr.Name] = data
	}
}

package redo

import (
	"context"

	"github.com/yndnr/redolog-go/internal/core/domain"
	"github.com/yndnr/redolog-go/internal/core/service"
	"github.com/yndnr/redolog-go/internal/storage/wal"
)

// volumeFields is the field block shared by CreateVolume and
// ModifyVolume.
type volumeFields struct {
	ID                   int16  `json:"id"`
	Type                 uint8  `json:"type"`
	Name                 string `json:"name"`
	Path                 string `json:"path"`
	CompressBlobs        bool   `json:"compress_blobs"`
	CompressionThreshold int64  `json:"compression_threshold"` // 1.4
}

func (v *volumeFields) encode(e *wal.Encoder) {
	e.Int16(v.ID)
	e.Uint8(v.Type)
	e.String(v.Name)
	e.LongString(v.Path)
	e.Bool(v.CompressBlobs)
	if e.AtLeast(1, 4) {
		e.Int64(v.CompressionThreshold)
	}
}

func (v *volumeFields) decode(d *wal.Decoder) {
	v.ID = d.Int16()
	v.Type = d.Uint8()
	v.Name = d.String()
	v.Path = d.LongString()
	v.CompressBlobs = d.Bool()
	v.CompressionThreshold = domain.DefaultCompressionThreshold
	if d.AtLeast(1, 4) {
		v.CompressionThreshold = d.Int64()
	}
}

func (v *volumeFields) volume() *domain.Volume {
	return &domain.Volume{
		ID:                   v.ID,
		Type:                 domain.VolumeType(v.Type),
		Name:                 v.Name,
		Path:                 v.Path,
		CompressBlobs:        v.CompressBlobs,
		CompressionThreshold: v.CompressionThreshold,
	}
}

// CreateVolume registers a storage volume. Volume operations are logged
// with the wildcard target.
type CreateVolume struct {
	volumeFields
}

func (*CreateVolume) Kind() wal.Kind { return KindCreateVolume }

func (o *CreateVolume) EncodeFields(e *wal.Encoder) { o.encode(e) }

func (o *CreateVolume) DecodeFields(d *wal.Decoder) { o.decode(d) }

func (o *CreateVolume) Redo(ctx context.Context, env *service.Env, _ *wal.Record) error {
	return env.Store.CreateVolume(ctx, o.volume())
}

// ModifyVolume replaces a volume's settings.
type ModifyVolume struct {
	volumeFields
}

func (*ModifyVolume) Kind() wal.Kind { return KindModifyVolume }

func (o *ModifyVolume) EncodeFields(e *wal.Encoder) { o.encode(e) }

func (o *ModifyVolume) DecodeFields(d *wal.Decoder) { o.decode(d) }

func (o *ModifyVolume) Redo(ctx context.Context, env *service.Env, _ *wal.Record) error {
	want := o.volume()
	return gone(env.Store.UpdateVolume(ctx, o.ID, func(v *domain.Volume) error {
		*v = *want
		return nil
	}))
}

// DeleteVolume removes a volume.
type DeleteVolume struct {
	ID int16 `json:"id"`
}

func (*DeleteVolume) Kind() wal.Kind { return KindDeleteVolume }

func (o *DeleteVolume) EncodeFields(e *wal.Encoder) { e.Int16(o.ID) }

func (o *DeleteVolume) DecodeFields(d *wal.Decoder) { o.ID = d.Int16() }

func (o *DeleteVolume) Redo(ctx context.Context, env *service.Env, _ *wal.Record) error {
	return gone(env.Store.DeleteVolume(ctx, o.ID))
}

// SetCurrentVolume makes a volume the current one of its type.
type SetCurrentVolume struct {
	Type uint8 `json:"type"`
	ID   int16 `json:"id"`
}

func (*SetCurrentVolume) Kind() wal.Kind { return KindSetCurrentVolume }

func (o *SetCurrentVolume) EncodeFields(e *wal.Encoder) {
	e.Uint8(o.Type)
	e.Int16(o.ID)
}

func (o *SetCurrentVolume) DecodeFields(d *wal.Decoder) {
	o.Type = d.Uint8()
	o.ID = d.Int16()
}

func (o *SetCurrentVolume) Redo(ctx context.Context, env *service.Env, _ *wal.Record) error {
	return gone(env.Store.SetCurrentVolume(ctx, domain.VolumeType(o.Type), o.ID))
}

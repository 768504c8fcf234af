package redo

import (
	"context"

	"github.com/yndnr/redolog-go/internal/core/domain"
	"github.com/yndnr/redolog-go/internal/core/service"
	"github.com/yndnr/redolog-go/internal/storage/wal"
)

func updateCalendarItem(ctx context.Context, env *service.Env, mailbox, id int32, fn func(*domain.Item)) error {
	return gone(env.Store.UpdateItem(ctx, mailbox, id, func(it *domain.Item) error {
		if !it.Type.IsCalendar() {
			return domain.ErrWrongItemType.Detailf("item %d is a %s", it.ID, it.Type)
		}
		fn(it)
		return nil
	}))
}

// FixCalendarItemTZ rewrites the time zone of a calendar item.
type FixCalendarItemTZ struct {
	ID           int32  `json:"id"`
	TZID         string `json:"tzid"`
	OffsetMillis int64  `json:"offset_ms"`
}

func (*FixCalendarItemTZ) Kind() wal.Kind { return KindFixCalendarItemTZ }

func (o *FixCalendarItemTZ) EncodeFields(e *wal.Encoder) {
	e.Int32(o.ID)
	e.String(o.TZID)
	e.Int64(o.OffsetMillis)
}

func (o *FixCalendarItemTZ) DecodeFields(d *wal.Decoder) {
	o.ID = d.Int32()
	o.TZID = d.String()
	o.OffsetMillis = d.Int64()
}

func (o *FixCalendarItemTZ) Redo(ctx context.Context, env *service.Env, rec *wal.Record) error {
	return updateCalendarItem(ctx, env, rec.Target, o.ID, func(it *domain.Item) {
		it.TZID = o.TZID
		it.TZOffsetMillis = o.OffsetMillis
	})
}

// DismissCalendarItemAlarm dismisses alarms up to DismissedAt.
type DismissCalendarItemAlarm struct {
	ID          int32 `json:"id"`
	DismissedAt int64 `json:"dismissed_at"`
}

func (*DismissCalendarItemAlarm) Kind() wal.Kind { return KindDismissCalendarItemAlarm }

func (o *DismissCalendarItemAlarm) EncodeFields(e *wal.Encoder) {
	e.Int32(o.ID)
	e.Int64(o.DismissedAt)
}

func (o *DismissCalendarItemAlarm) DecodeFields(d *wal.Decoder) {
	o.ID = d.Int32()
	o.DismissedAt = d.Int64()
}

func (o *DismissCalendarItemAlarm) Redo(ctx context.Context, env *service.Env, rec *wal.Record) error {
	return updateCalendarItem(ctx, env, rec.Target, o.ID, func(it *domain.Item) {
		it.AlarmDismissedAt = o.DismissedAt
		it.AlarmSnoozeUntil = 0
	})
}

// SnoozeCalendarItemAlarm postpones the next alarm to Until.
type SnoozeCalendarItemAlarm struct {
	ID    int32 `json:"id"`
	Until int64 `json:"until"`
}

func (*SnoozeCalendarItemAlarm) Kind() wal.Kind { return KindSnoozeCalendarItemAlarm }

func (o *SnoozeCalendarItemAlarm) EncodeFields(e *wal.Encoder) {
	e.Int32(o.ID)
	e.Int64(o.Until)
}

func (o *SnoozeCalendarItemAlarm) DecodeFields(d *wal.Decoder) {
	o.ID = d.Int32()
	o.Until = d.Int64()
}

func (o *SnoozeCalendarItemAlarm) Redo(ctx context.Context, env *service.Env, rec *wal.Record) error {
	return updateCalendarItem(ctx, env, rec.Target, o.ID, func(it *domain.Item) {
		it.AlarmSnoozeUntil = o.Until
	})
}

// ICalReply records an attendee's reply to an invitation.
type ICalReply struct {
	ID           int32  `json:"id"`
	Attendee     string `json:"attendee"`
	PartStat     string `json:"partstat"`
	Sequence     int32  `json:"sequence"`
	RecurrenceID string `json:"recurrence_id,omitempty"`
	Comment      string `json:"comment,omitempty"` // 1.2
}

func (*ICalReply) Kind() wal.Kind { return KindICalReply }

func (o *ICalReply) EncodeFields(e *wal.Encoder) {
	e.Int32(o.ID)
	e.String(o.Attendee)
	e.String(o.PartStat)
	e.Int32(o.Sequence)
	e.String(o.RecurrenceID)
	if e.AtLeast(1, 2) {
		e.LongString(o.Comment)
	}
}

func (o *ICalReply) DecodeFields(d *wal.Decoder) {
	o.ID = d.Int32()
	o.Attendee = d.String()
	o.PartStat = d.String()
	o.Sequence = d.Int32()
	o.RecurrenceID = d.String()
	o.Comment = ""
	if d.AtLeast(1, 2) {
		o.Comment = d.LongString()
	}
}

// Redo stores the reply, replacing an earlier reply of the same
// attendee to the same instance unless that one has a higher sequence.
func (o *ICalReply) Redo(ctx context.Context, env *service.Env, rec *wal.Record) error {
	reply := domain.CalendarReply{
		Attendee:     o.Attendee,
		PartStat:     o.PartStat,
		Sequence:     o.Sequence,
		RecurrenceID: o.RecurrenceID,
		Comment:      o.Comment,
		Timestamp:    rec.Timestamp,
	}
	return updateCalendarItem(ctx, env, rec.Target, o.ID, func(it *domain.Item) {
		for i, r := range it.Replies {
			if r.Attendee == reply.Attendee && r.RecurrenceID == reply.RecurrenceID {
				if r.Sequence <= reply.Sequence {
					it.Replies[i] = reply
				}
				return
			}
		}
		it.Replies = append(it.Replies, reply)
	})
}

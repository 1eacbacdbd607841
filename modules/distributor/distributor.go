// Package distributor is the ingestion edge: it validates the polymorphic
// telemetry envelope and routes each reading to the matching class buffer.
// A 202 from here means accepted, not persisted.
package distributor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/gridstream/gridstream/pkg/telemetry"
)

var (
	metricAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridstream",
		Name:      "distributor_readings_accepted_total",
		Help:      "Readings accepted into a class buffer.",
	}, []string{"class"})
	metricRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gridstream",
		Name:      "distributor_readings_rejected_total",
		Help:      "Readings rejected by validation.",
	})
)

// Pusher is the buffer contract the distributor dispatches into.
type Pusher interface {
	PushVehicle(telemetry.VehicleReading)
	PushMeter(telemetry.MeterReading)
	Depths() (vehicles, meters int)
}

// envelope is the tagged variant on the wire. Dispatch happens on the
// discriminator, never on payload shape.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type vehiclePayload struct {
	VehicleID      string          `json:"vehicle_id" validate:"required,max=64"`
	SoC            decimal.Decimal `json:"soc" validate:"gte=0,lte=100"`
	KWhDeliveredDC decimal.Decimal `json:"kwh_delivered_dc" validate:"gte=0"`
	BatteryTemp    decimal.Decimal `json:"battery_temp"`
	RecordedAt     time.Time       `json:"recorded_at" validate:"required"`
}

type meterPayload struct {
	MeterID       string          `json:"meter_id" validate:"required,max=64"`
	KWhConsumedAC decimal.Decimal `json:"kwh_consumed_ac" validate:"gte=0"`
	Voltage       decimal.Decimal `json:"voltage" validate:"gte=0"`
	RecordedAt    time.Time       `json:"recorded_at" validate:"required"`
}

// FieldError is one client-visible validation failure.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError carries the full list of field failures for a 400.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Field+": "+fe.Error)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func singleFieldError(field, msg string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Error: msg}}}
}

// Distributor validates and dispatches telemetry messages.
type Distributor struct {
	cfg      Config
	logger   log.Logger
	pusher   Pusher
	validate *validator.Validate
}

// New creates a Distributor pushing into p.
func New(cfg Config, p Pusher, logger log.Logger) *Distributor {
	v := validator.New()
	// Teach the validator to compare decimals with the numeric tags.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	return &Distributor{
		cfg:      cfg,
		logger:   log.With(logger, "component", "distributor"),
		pusher:   p,
		validate: v,
	}
}

// Push decodes, validates and routes one telemetry message. The returned
// error, if any, is a *ValidationError; nothing here touches the database.
func (d *Distributor) Push(body []byte) error {
	var env envelope
	if err := strictDecode(body, &env); err != nil {
		metricRejected.Inc()
		return singleFieldError("body", err.Error())
	}

	switch env.Type {
	case "VEHICLE":
		var p vehiclePayload
		if err := d.decodePayload(env.Payload, &p); err != nil {
			return err
		}
		d.pusher.PushVehicle(telemetry.VehicleReading{
			VehicleID:      p.VehicleID,
			SoC:            p.SoC,
			KWhDeliveredDC: p.KWhDeliveredDC,
			BatteryTemp:    p.BatteryTemp,
			RecordedAt:     p.RecordedAt,
			IngestedAt:     time.Now().UTC(),
		})
		metricAccepted.WithLabelValues(string(telemetry.ClassVehicle)).Inc()
		return nil

	case "METER":
		var p meterPayload
		if err := d.decodePayload(env.Payload, &p); err != nil {
			return err
		}
		d.pusher.PushMeter(telemetry.MeterReading{
			MeterID:       p.MeterID,
			KWhConsumedAC: p.KWhConsumedAC,
			Voltage:       p.Voltage,
			RecordedAt:    p.RecordedAt,
			IngestedAt:    time.Now().UTC(),
		})
		metricAccepted.WithLabelValues(string(telemetry.ClassMeter)).Inc()
		return nil

	default:
		metricRejected.Inc()
		return singleFieldError("type", fmt.Sprintf("unknown type %q, want METER or VEHICLE", env.Type))
	}
}

func (d *Distributor) decodePayload(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		metricRejected.Inc()
		return singleFieldError("payload", "payload is required")
	}
	if err := strictDecode(raw, out); err != nil {
		metricRejected.Inc()
		return singleFieldError("payload", err.Error())
	}
	if err := d.validate.Struct(out); err != nil {
		metricRejected.Inc()
		return asValidationError(err)
	}
	return nil
}

// strictDecode rejects unknown fields and trailing garbage.
func strictDecode(raw []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected trailing data")
	}
	return nil
}

func asValidationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return singleFieldError("payload", err.Error())
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		msg := "failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		out.Errors = append(out.Errors, FieldError{Field: fe.Field(), Error: msg})
	}
	return out
}

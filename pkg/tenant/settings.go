package tenant

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SettingType tags the representation of a stored setting value
type SettingType string

const (
	TypeString  SettingType = "string"
	TypeInteger SettingType = "integer"
	TypeDecimal SettingType = "decimal"
	TypeBoolean SettingType = "boolean"
	TypeJSON    SettingType = "json"
)

// Valid reports whether t is a known setting type
func (t SettingType) Valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeDecimal, TypeBoolean, TypeJSON:
		return true
	}
	return false
}

// TypedValue is a setting value together with its declared type. Only the
// field matching Type is meaningful.
type TypedValue struct {
	Type SettingType

	str string
	num int64
	dec decimal.Decimal
	b   bool
	raw json.RawMessage
}

// StringValue wraps a string setting
func StringValue(s string) TypedValue { return TypedValue{Type: TypeString, str: s} }

// IntegerValue wraps an integer setting
func IntegerValue(n int64) TypedValue { return TypedValue{Type: TypeInteger, num: n} }

// DecimalValue wraps an exact decimal setting
func DecimalValue(d decimal.Decimal) TypedValue { return TypedValue{Type: TypeDecimal, dec: d} }

// BooleanValue wraps a boolean setting
func BooleanValue(b bool) TypedValue { return TypedValue{Type: TypeBoolean, b: b} }

// JSONValue wraps a structured setting
func JSONValue(v interface{}) (TypedValue, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return TypedValue{}, fmt.Errorf("%w: %v", ErrInvalidSetting, err)
	}
	return TypedValue{Type: TypeJSON, raw: raw}, nil
}

// NewTypedValue coerces v into a value of type t. Strings are parsed, so
// form and query input can be passed through unchanged.
func NewTypedValue(t SettingType, v interface{}) (TypedValue, error) {
	if !t.Valid() {
		return TypedValue{}, fmt.Errorf("%w: unknown type %q", ErrInvalidSetting, t)
	}
	if s, ok := v.(string); ok && t != TypeString {
		return ParseTypedValue(t, s)
	}

	switch t {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return TypedValue{}, fmt.Errorf("%w: expected string, got %T", ErrInvalidSetting, v)
		}
		return StringValue(s), nil
	case TypeInteger:
		switch n := v.(type) {
		case int:
			return IntegerValue(int64(n)), nil
		case int64:
			return IntegerValue(n), nil
		case float64:
			if n != float64(int64(n)) {
				return TypedValue{}, fmt.Errorf("%w: %v is not an integer", ErrInvalidSetting, n)
			}
			return IntegerValue(int64(n)), nil
		case json.Number:
			return ParseTypedValue(t, n.String())
		}
	case TypeDecimal:
		switch n := v.(type) {
		case decimal.Decimal:
			return DecimalValue(n), nil
		case float64:
			return DecimalValue(decimal.NewFromFloat(n)), nil
		case int:
			return DecimalValue(decimal.NewFromInt(int64(n))), nil
		case int64:
			return DecimalValue(decimal.NewFromInt(n)), nil
		case json.Number:
			return ParseTypedValue(t, n.String())
		}
	case TypeBoolean:
		if b, ok := v.(bool); ok {
			return BooleanValue(b), nil
		}
	case TypeJSON:
		return JSONValue(v)
	}
	return TypedValue{}, fmt.Errorf("%w: cannot use %T as %s", ErrInvalidSetting, v, t)
}

// ParseTypedValue decodes the stored text form of a value of type t
func ParseTypedValue(t SettingType, s string) (TypedValue, error) {
	switch t {
	case TypeString:
		return StringValue(s), nil
	case TypeInteger:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return TypedValue{}, fmt.Errorf("%w: %q is not an integer", ErrInvalidSetting, s)
		}
		return IntegerValue(n), nil
	case TypeDecimal:
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return TypedValue{}, fmt.Errorf("%w: %q is not a decimal", ErrInvalidSetting, s)
		}
		return DecimalValue(d), nil
	case TypeBoolean:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return TypedValue{}, fmt.Errorf("%w: %q is not a boolean", ErrInvalidSetting, s)
		}
		return BooleanValue(b), nil
	case TypeJSON:
		if !json.Valid([]byte(s)) {
			return TypedValue{}, fmt.Errorf("%w: invalid JSON", ErrInvalidSetting)
		}
		return TypedValue{Type: TypeJSON, raw: json.RawMessage(s)}, nil
	}
	return TypedValue{}, fmt.Errorf("%w: unknown type %q", ErrInvalidSetting, t)
}

// Encode returns the text form stored in the database
func (v TypedValue) Encode() string {
	switch v.Type {
	case TypeInteger:
		return strconv.FormatInt(v.num, 10)
	case TypeDecimal:
		return v.dec.String()
	case TypeBoolean:
		return strconv.FormatBool(v.b)
	case TypeJSON:
		return string(v.raw)
	}
	return v.str
}

// Interface returns the value as a plain Go value: string, int64, float64,
// bool, or the decoded JSON document.
func (v TypedValue) Interface() interface{} {
	switch v.Type {
	case TypeInteger:
		return v.num
	case TypeDecimal:
		f, _ := v.dec.Float64()
		return f
	case TypeBoolean:
		return v.b
	case TypeJSON:
		var out interface{}
		if err := json.Unmarshal(v.raw, &out); err != nil {
			return nil
		}
		return out
	}
	return v.str
}

// String returns the string payload, or the text form for other types
func (v TypedValue) String() string {
	if v.Type == TypeString {
		return v.str
	}
	return v.Encode()
}

// Int returns the integer payload
func (v TypedValue) Int() int64 { return v.num }

// Decimal returns the exact decimal payload
func (v TypedValue) Decimal() decimal.Decimal { return v.dec }

// Bool returns the boolean payload
func (v TypedValue) Bool() bool { return v.b }

// Decode unmarshals a JSON payload into dest
func (v TypedValue) Decode(dest interface{}) error {
	if v.Type != TypeJSON {
		return fmt.Errorf("%w: %s is not json", ErrInvalidSetting, v.Type)
	}
	return json.Unmarshal(v.raw, dest)
}

// Equal compares type and payload
func (v TypedValue) Equal(o TypedValue) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case TypeDecimal:
		return v.dec.Equal(o.dec)
	case TypeJSON:
		return bytes.Equal(v.raw, o.raw)
	}
	return v.Encode() == o.Encode()
}

type typedValueJSON struct {
	Type  SettingType     `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the value as {"type": ..., "value": ...}
func (v TypedValue) MarshalJSON() ([]byte, error) {
	var value []byte
	var err error
	switch v.Type {
	case TypeDecimal:
		value = []byte(v.dec.String())
	case TypeJSON:
		value = v.raw
	default:
		value, err = json.Marshal(v.Interface())
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(typedValueJSON{Type: v.Type, Value: value})
}

// UnmarshalJSON decodes the {"type": ..., "value": ...} form
func (v *TypedValue) UnmarshalJSON(data []byte) error {
	var in typedValueJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	var decoded TypedValue
	var err error
	if in.Type == TypeJSON {
		decoded, err = ParseTypedValue(TypeJSON, string(in.Value))
	} else {
		dec := json.NewDecoder(bytes.NewReader(in.Value))
		dec.UseNumber()
		var raw interface{}
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSetting, err)
		}
		decoded, err = NewTypedValue(in.Type, raw)
	}
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// Setting keys with built-in defaults
const (
	SettingTaxRate          = "tax_rate"
	SettingCurrency         = "currency"
	SettingPaymentTermsDays = "payment_terms_days"
	SettingInvoicePrefix    = "invoice_prefix"
	SettingOfferPrefix      = "offer_prefix"
	SettingRemindersEnabled = "reminders_enabled"
	SettingSmallBusiness    = "small_business"
	SettingLocale           = "locale"
	SettingBankDetails      = "bank_details"
	SettingSMTP             = "smtp"
)

// DefaultSettings returns the value used when a company has not stored one
func DefaultSettings() map[string]TypedValue {
	bank, _ := JSONValue(map[string]string{"iban": "", "bic": "", "bank_name": ""})
	smtp, _ := JSONValue(map[string]string{})
	return map[string]TypedValue{
		SettingTaxRate:          DecimalValue(decimal.RequireFromString("0.19")),
		SettingCurrency:         StringValue("EUR"),
		SettingPaymentTermsDays: IntegerValue(14),
		SettingInvoicePrefix:    StringValue("RE-"),
		SettingOfferPrefix:      StringValue("AN-"),
		SettingRemindersEnabled: BooleanValue(true),
		SettingSmallBusiness:    BooleanValue(false),
		SettingLocale:           StringValue("de"),
		SettingBankDetails:      bank,
		SettingSMTP:             smtp,
	}
}

// Setting is a stored key/value pair for one company
type Setting struct {
	CompanyID int64      `json:"company_id"`
	Key       string     `json:"key"`
	Value     TypedValue `json:"value"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// SettingsRepository stores typed per-company settings
type SettingsRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSettingsRepository creates a settings repository
func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Get returns the stored value for key, or ErrSettingNotFound
func (r *SettingsRepository) Get(ctx context.Context, companyID int64, key string) (TypedValue, error) {
	var raw, typ string
	err := r.db.QueryRowContext(ctx,
		"SELECT value, type FROM company_settings WHERE company_id = $1 AND key = $2",
		companyID, key,
	).Scan(&raw, &typ)
	if errors.Is(err, sql.ErrNoRows) {
		return TypedValue{}, ErrSettingNotFound
	}
	if err != nil {
		return TypedValue{}, fmt.Errorf("failed to get setting: %w", err)
	}
	return ParseTypedValue(SettingType(typ), raw)
}

// Effective returns the stored value for key, falling back to the built-in
// default.
func (r *SettingsRepository) Effective(ctx context.Context, companyID int64, key string) (TypedValue, error) {
	v, err := r.Get(ctx, companyID, key)
	if errors.Is(err, ErrSettingNotFound) {
		if d, ok := DefaultSettings()[key]; ok {
			return d, nil
		}
	}
	return v, err
}

// Set upserts a value
func (r *SettingsRepository) Set(ctx context.Context, companyID int64, key string, value TypedValue) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidSetting)
	}
	if !value.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidSetting, value.Type)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO company_settings (company_id, key, value, type, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (company_id, key)
		DO UPDATE SET value = excluded.value, type = excluded.type, updated_at = excluded.updated_at`,
		companyID, key, value.Encode(), string(value.Type), r.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

// Delete removes a stored value; the default applies again afterwards
func (r *SettingsRepository) Delete(ctx context.Context, companyID int64, key string) error {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM company_settings WHERE company_id = $1 AND key = $2", companyID, key)
	if err != nil {
		return fmt.Errorf("failed to delete setting: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSettingNotFound
	}
	return nil
}

// All returns every stored setting for a company, ordered by key
func (r *SettingsRepository) All(ctx context.Context, companyID int64) ([]Setting, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT key, value, type, updated_at FROM company_settings WHERE company_id = $1 ORDER BY key",
		companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	var out []Setting
	for rows.Next() {
		var s Setting
		var raw, typ string
		if err := rows.Scan(&s.Key, &raw, &typ, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		v, err := ParseTypedValue(SettingType(typ), raw)
		if err != nil {
			return nil, fmt.Errorf("setting %q: %w", s.Key, err)
		}
		s.CompanyID = companyID
		s.Value = v
		out = append(out, s)
	}
	return out, rows.Err()
}

// EffectiveAll overlays stored settings on the defaults
func (r *SettingsRepository) EffectiveAll(ctx context.Context, companyID int64) (map[string]TypedValue, error) {
	stored, err := r.All(ctx, companyID)
	if err != nil {
		return nil, err
	}
	out := DefaultSettings()
	for _, s := range stored {
		out[s.Key] = s.Value
	}
	return out, nil
}

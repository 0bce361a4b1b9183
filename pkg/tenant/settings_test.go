package tenant

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/andobill/pkg/dbtest"
)

func TestSettings_DecimalRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	company := dbtest.InsertCompany(t, db, "Acme", "active")
	repo := NewSettingsRepository(db)

	v, err := NewTypedValue(TypeDecimal, 0.19)
	require.NoError(t, err)
	require.NoError(t, repo.Set(ctx, company, SettingTaxRate, v))

	got, err := repo.Get(ctx, company, SettingTaxRate)
	require.NoError(t, err)
	assert.Equal(t, TypeDecimal, got.Type)
	assert.Equal(t, 0.19, got.Interface())
	assert.True(t, got.Decimal().Equal(decimal.RequireFromString("0.19")))
	assert.Equal(t, "0.19", got.Encode())
}

func TestSettings_TypesRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	company := dbtest.InsertCompany(t, db, "Acme", "active")
	repo := NewSettingsRepository(db)

	bank, err := JSONValue(map[string]string{"iban": "DE89370400440532013000"})
	require.NoError(t, err)

	values := map[string]TypedValue{
		"currency":           StringValue("EUR"),
		"payment_terms_days": IntegerValue(30),
		"small_business":     BooleanValue(true),
		"bank_details":       bank,
		"discount":           DecimalValue(decimal.RequireFromString("2.50")),
	}
	for k, v := range values {
		require.NoError(t, repo.Set(ctx, company, k, v))
	}
	for k, want := range values {
		got, err := repo.Get(ctx, company, k)
		require.NoError(t, err, k)
		assert.True(t, want.Equal(got), k)
	}

	got, err := repo.Get(ctx, company, "payment_terms_days")
	require.NoError(t, err)
	assert.Equal(t, int64(30), got.Interface())

	var decoded map[string]string
	got, err = repo.Get(ctx, company, "bank_details")
	require.NoError(t, err)
	require.NoError(t, got.Decode(&decoded))
	assert.Equal(t, "DE89370400440532013000", decoded["iban"])
}

func TestSettings_UpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	company := dbtest.InsertCompany(t, db, "Acme", "active")
	other := dbtest.InsertCompany(t, db, "Other", "active")
	repo := NewSettingsRepository(db)

	require.NoError(t, repo.Set(ctx, company, SettingCurrency, StringValue("CHF")))
	require.NoError(t, repo.Set(ctx, company, SettingCurrency, StringValue("USD")))

	all, err := repo.All(ctx, company)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "USD", all[0].Value.String())

	_, err = repo.Get(ctx, other, SettingCurrency)
	assert.ErrorIs(t, err, ErrSettingNotFound, "settings are per company")

	effective, err := repo.EffectiveAll(ctx, company)
	require.NoError(t, err)
	assert.Equal(t, "USD", effective[SettingCurrency].String())
	assert.Equal(t, "0.19", effective[SettingTaxRate].Encode())

	require.NoError(t, repo.Delete(ctx, company, SettingCurrency))
	assert.ErrorIs(t, repo.Delete(ctx, company, SettingCurrency), ErrSettingNotFound)

	v, err := repo.Effective(ctx, company, SettingCurrency)
	require.NoError(t, err)
	assert.Equal(t, "EUR", v.String())

	_, err = repo.Effective(ctx, company, "no_such_key")
	assert.ErrorIs(t, err, ErrSettingNotFound)
}

func TestNewTypedValue(t *testing.T) {
	tests := []struct {
		name    string
		typ     SettingType
		in      interface{}
		want    interface{}
		wantErr bool
	}{
		{"string", TypeString, "RE-", "RE-", false},
		{"integer from float", TypeInteger, float64(14), int64(14), false},
		{"integer from string", TypeInteger, " 7 ", int64(7), false},
		{"fractional integer", TypeInteger, 1.5, nil, true},
		{"decimal from string", TypeDecimal, "0.07", 0.07, false},
		{"decimal from int", TypeDecimal, 1, float64(1), false},
		{"bad decimal", TypeDecimal, "sieben", nil, true},
		{"boolean", TypeBoolean, true, true, false},
		{"boolean from string", TypeBoolean, "false", false, false},
		{"boolean from number", TypeBoolean, 1, nil, true},
		{"string from number", TypeString, 5, nil, true},
		{"unknown type", SettingType("date"), "2024-01-01", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewTypedValue(tt.typ, tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSetting)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Interface())
		})
	}
}

func TestTypedValue_JSON(t *testing.T) {
	out, err := json.Marshal(DecimalValue(decimal.RequireFromString("0.19")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"decimal","value":0.19}`, string(out))

	var v TypedValue
	require.NoError(t, json.Unmarshal([]byte(`{"type":"decimal","value":0.19}`), &v))
	assert.Equal(t, "0.19", v.Encode())

	require.NoError(t, json.Unmarshal([]byte(`{"type":"integer","value":14}`), &v))
	assert.Equal(t, int64(14), v.Int())

	require.NoError(t, json.Unmarshal([]byte(`{"type":"json","value":{"iban":"X"}}`), &v))
	assert.Equal(t, map[string]interface{}{"iban": "X"}, v.Interface())

	assert.Error(t, json.Unmarshal([]byte(`{"type":"boolean","value":"maybe"}`), &v))
}

package mongostore_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"

	mongostore "github.com/empowa-tech/marketplace/internal/store/mongo"
)

type priced struct {
	Price decimal.Decimal  `bson:"price"`
	Ask   *decimal.Decimal `bson:"ask"`
}

func TestDecimalStoredAsDouble(t *testing.T) {
	reg := mongostore.NewRegistry()
	raw, err := bson.MarshalWithRegistry(reg, priced{Price: decimal.RequireFromString("125.5")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	v := bson.Raw(raw).Lookup("price")
	if v.Type != bsontype.Double || v.Double() != 125.5 {
		t.Fatalf("price = %v (%v), want double 125.5", v, v.Type)
	}
	if ask := bson.Raw(raw).Lookup("ask"); ask.Type != bsontype.Null {
		t.Fatalf("ask = %v, want null", ask.Type)
	}

	var out priced
	if err := bson.UnmarshalWithRegistry(reg, raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Price.Equal(decimal.RequireFromString("125.5")) || out.Ask != nil {
		t.Fatalf("decoded = %+v", out)
	}
}

func TestDecimalDecodesOtherNumericTypes(t *testing.T) {
	reg := mongostore.NewRegistry()
	d128, _ := primitive.ParseDecimal128("99.95")
	cases := []struct {
		name string
		val  any
		want string
	}{
		{"int32", int32(7), "7"},
		{"int64", int64(1500000), "1500000"},
		{"decimal128", d128, "99.95"},
		{"string", "0.1", "0.1"},
	}
	for _, c := range cases {
		raw, err := bson.Marshal(bson.D{{Key: "price", Value: c.val}, {Key: "ask", Value: c.val}})
		if err != nil {
			t.Fatalf("%s: marshal: %v", c.name, err)
		}
		var out priced
		if err := bson.UnmarshalWithRegistry(reg, raw, &out); err != nil {
			t.Fatalf("%s: unmarshal: %v", c.name, err)
		}
		want := decimal.RequireFromString(c.want)
		if !out.Price.Equal(want) || out.Ask == nil || !out.Ask.Equal(want) {
			t.Errorf("%s: decoded = %v / %v, want %s", c.name, out.Price, out.Ask, c.want)
		}
	}
}

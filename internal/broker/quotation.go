package broker

import (
	pb "github.com/russianinvestments/invest-api-go-sdk/proto"
	"github.com/shopspring/decimal"
)

var nanoScale = decimal.New(1, 9)

func quotationToDecimal(q *pb.Quotation) decimal.Decimal {
	if q == nil {
		return decimal.Zero
	}
	return decimal.NewFromInt(q.GetUnits()).Add(decimal.New(int64(q.GetNano()), -9))
}

func moneyToDecimal(m *pb.MoneyValue) decimal.Decimal {
	if m == nil {
		return decimal.Zero
	}
	return decimal.NewFromInt(m.GetUnits()).Add(decimal.New(int64(m.GetNano()), -9))
}

// toQuotation rounds to nine decimals, the precision of the API.
func toQuotation(value float64) *pb.Quotation {
	d := decimal.NewFromFloat(value).Round(9)
	units := d.IntPart()
	nano := d.Sub(decimal.NewFromInt(units)).Mul(nanoScale).IntPart()
	return &pb.Quotation{Units: units, Nano: int32(nano)}
}

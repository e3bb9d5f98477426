package domain

// OrderFromRaw parses a normalized adapter order into the core entity.
// The order keeps the exchange id in ExchangeOrderID and gets a local id
// only if the caller did not provide one.
func OrderFromRaw(raw *RawOrder, parseStatus func(string) OrderStatus) (*Order, error) {
	kind, err := ParseOrderType(raw.Type, raw.Side)
	if err != nil {
		return nil, err
	}
	takerOrMaker := raw.TakerOrMaker
	if takerOrMaker == "" {
		takerOrMaker = kind.DefaultTakerOrMaker()
	}
	o := &Order{
		OrderID:         raw.ID,
		ExchangeOrderID: raw.ID,
		Symbol:          raw.Symbol,
		Side:            raw.Side,
		Type:            kind,
		Status:          parseStatus(raw.Status),
		OriginPrice:     raw.Price,
		OriginQuantity:  raw.Quantity,
		OriginStopPrice: raw.StopPrice,
		FilledQuantity:  raw.Filled,
		TotalCost:       raw.Cost,
		CreationTime:    raw.Timestamp,
		TakerOrMaker:    takerOrMaker,
	}
	if !raw.Filled.IsZero() {
		o.FilledPrice = raw.Price
		if !raw.Cost.IsZero() && !raw.Filled.IsZero() {
			o.FilledPrice = raw.Cost.Div(raw.Filled)
		}
	}
	if !raw.FeeCost.IsZero() {
		o.Fee = &Fee{Currency: raw.FeeCurrency, Cost: raw.FeeCost}
	}
	return o, nil
}

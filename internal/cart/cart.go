package cart

import "slices"

// AddItem returns a copy of c with one more of product: the existing line's
// quantity is incremented, otherwise a new line with quantity 1 is appended.
func AddItem(c Cart, product Product) Cart {
	items := slices.Clone(c.Items)
	for i := range items {
		if items[i].ID == product.ID {
			items[i].Quantity++
			return Cart{Items: items}
		}
	}
	items = append(items, LineItem{
		ID:       product.ID,
		Name:     product.Name,
		Price:    product.Price,
		Quantity: 1,
	})
	return Cart{Items: items}
}

// RemoveItem returns a copy of c without the line for id. Missing ids are a
// no-op.
func RemoveItem(c Cart, id string) Cart {
	items := slices.DeleteFunc(slices.Clone(c.Items), func(item LineItem) bool {
		return item.ID == id
	})
	return Cart{Items: items}
}

// Total is the sum of price times quantity over all lines.
func Total(c Cart) float64 {
	var total float64
	for _, item := range c.Items {
		total += item.Price * float64(item.Quantity)
	}
	return total
}

// Count is the number of units in the cart.
func Count(c Cart) int {
	var n int
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

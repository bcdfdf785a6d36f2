package cart

import (
	"context"
	"fmt"
	"strconv"

	"storefront-proxy/internal/model"
)

// DesiredLine is one line of a full desired cart.
type DesiredLine struct {
	ProductID   int
	VariationID *int
	Quantity    int
}

// LineDiff lists the mutations that turn one cart into another. Apply in
// order Remove, Update, Add so an update never targets a removed line.
type LineDiff struct {
	Remove []string       // line keys
	Update []LineUpdate   // existing lines with a new quantity
	Add    []AddItemInput // products not in the cart yet
}

// LineUpdate changes the quantity of an existing line.
type LineUpdate struct {
	Key      string
	Quantity int
}

// IsEmpty reports whether no changes are needed.
func (d LineDiff) IsEmpty() bool {
	return len(d.Remove) == 0 && len(d.Update) == 0 && len(d.Add) == 0
}

// Diff computes the changes from current to desired. Lines match on product
// and variation, not line key. Output order follows current for removals and
// desired for updates and adds. A desired quantity of 0 means absent.
func Diff(current Cart, desired []DesiredLine) LineDiff {
	var d LineDiff

	want := make(map[string]DesiredLine, len(desired))
	for _, line := range desired {
		if line.Quantity > 0 {
			want[lineMatchKey(line.ProductID, line.VariationID)] = line
		}
	}

	have := make(map[string]LineItem, len(current.Items))
	for _, item := range current.Items {
		k := lineMatchKey(item.ProductID, item.VariationID)
		if _, dup := have[k]; dup {
			// Two lines for the same product: keep the first, drop the rest.
			d.Remove = append(d.Remove, item.Key)
			continue
		}
		have[k] = item
		if _, ok := want[k]; !ok {
			d.Remove = append(d.Remove, item.Key)
		}
	}

	seen := make(map[string]bool, len(desired))
	for _, line := range desired {
		k := lineMatchKey(line.ProductID, line.VariationID)
		if line.Quantity <= 0 || seen[k] {
			continue
		}
		seen[k] = true
		line = want[k]

		if item, ok := have[k]; ok {
			if item.Quantity != line.Quantity {
				d.Update = append(d.Update, LineUpdate{Key: item.Key, Quantity: line.Quantity})
			}
			continue
		}
		d.Add = append(d.Add, AddItemInput{
			ProductID:   line.ProductID,
			VariationID: line.VariationID,
			Quantity:    line.Quantity,
		})
	}
	return d
}

func lineMatchKey(productID int, variationID *int) string {
	k := strconv.Itoa(productID)
	if variationID != nil {
		k += ":" + strconv.Itoa(*variationID)
	}
	return k
}

// SetContents makes the cart hold exactly desired, issuing only the
// mutations the diff against the upstream cart calls for. It runs as one
// mutation; a failure part way leaves the held cart at its previous value
// and the upstream cart partially applied, which the next load will show.
func (s *Store) SetContents(ctx context.Context, desired []DesiredLine) (Cart, error) {
	for i, line := range desired {
		if line.Quantity < 0 {
			return Cart{}, model.NewValidationError(fmt.Sprintf("lines[%d].quantity", i), "must not be negative")
		}
		if line.Quantity > 0 {
			if err := validateAdd(AddItemInput{ProductID: line.ProductID, Quantity: line.Quantity, VariationID: line.VariationID}); err != nil {
				return Cart{}, err
			}
		}
	}

	return s.mutate(ctx, "set contents", func(ctx context.Context) (Payload, error) {
		p, err := s.backend.GetCart(ctx)
		if err != nil {
			return Payload{}, err
		}
		diff := Diff(s.normalizer.Normalize(p), desired)

		for _, key := range diff.Remove {
			if p, err = s.backend.RemoveItem(ctx, key); err != nil {
				return Payload{}, fmt.Errorf("removing %s: %w", key, err)
			}
		}
		for _, u := range diff.Update {
			if p, err = s.backend.UpdateQuantity(ctx, u.Key, u.Quantity); err != nil {
				return Payload{}, fmt.Errorf("updating %s: %w", u.Key, err)
			}
		}
		for _, in := range diff.Add {
			if p, err = s.backend.AddItem(ctx, in); err != nil {
				return Payload{}, fmt.Errorf("adding product %d: %w", in.ProductID, err)
			}
		}
		return p, nil
	})
}

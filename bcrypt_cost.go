//go:build !race

package bank

func passwordHashCost() int {
	return 12
}

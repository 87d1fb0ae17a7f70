package sharing

// Arithmetic over GF(2^8) with the AES reduction polynomial x^8+x^4+x^3+x+1.
// This is the field github.com/hashicorp/vault/shamir interpolates in, so parts
// evaluated here combine with shamir.Combine.

// add is field addition (and subtraction).
func add(a, b uint8) uint8 {
	return a ^ b
}

// mult multiplies in constant time.
func mult(a, b uint8) uint8 {
	var r uint8
	var i uint8 = 8
	for i > 0 {
		i--
		r = (-(b >> i & 1) & a) ^ (-(r >> 7) & 0x1B) ^ (r + r)
	}
	return r
}

// evaluate computes f(x) = intercept + slope*x.
func evaluate(intercept, slope, x uint8) uint8 {
	return add(intercept, mult(slope, x))
}

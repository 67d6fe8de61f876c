package sketchmap

// FrameWeights turns per-observation weights into the pair weight matrix
// W_ij = w_i·w_j (zero diagonal) after normalising the weights to sum to one.
// All-zero weights are treated as uniform.
func FrameWeights(w []float64) [][]float64 {
	n := len(w)
	var total float64
	for _, v := range w {
		total += v
	}
	norm := make([]float64, n)
	for i, v := range w {
		if total > 0 {
			norm[i] = v / total
		} else {
			norm[i] = 1 / float64(n)
		}
	}

	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := range out[i] {
			if i != j {
				out[i][j] = norm[i] * norm[j]
			}
		}
	}
	return out
}

// UniformWeights returns the n×n pair weight matrix with ones off the diagonal.
func UniformWeights(n int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := range out[i] {
			if i != j {
				out[i][j] = 1
			}
		}
	}
	return out
}

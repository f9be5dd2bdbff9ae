// Package grid converts between linear row-major indices and x/y cells.
package grid

// GetGridCoords returns the column and row of index in a grid cols wide.
func GetGridCoords(index, cols int) (x, y int) {
	return index % cols, index / cols
}

// GetIndex is the inverse of GetGridCoords.
func GetIndex(x, y, cols int) int {
	return y*cols + x
}

// InBounds reports whether (x, y) lies inside a cols×rows grid.
func InBounds(x, y, cols, rows int) bool {
	return x >= 0 && x < cols && y >= 0 && y < rows
}

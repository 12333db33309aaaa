package register

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

// fft2 computes the 2D discrete Fourier transform of a row-major real
// image, rows first then columns. Gonum's complex FFT handles arbitrary
// dimensions, so images need not be square or power-of-two sized.
func fft2(data []float64, width, height int) []complex128 {
	out := make([]complex128, len(data))
	for i, v := range data {
		out[i] = complex(v, 0)
	}

	rowFFT := fourier.NewCmplxFFT(width)
	row := make([]complex128, width)
	for y := 0; y < height; y++ {
		copy(row, out[y*width:(y+1)*width])
		rowFFT.Coefficients(out[y*width:(y+1)*width], row)
	}

	colFFT := fourier.NewCmplxFFT(height)
	col := make([]complex128, height)
	colOut := make([]complex128, height)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			col[y] = out[y*width+x]
		}
		colFFT.Coefficients(colOut, col)
		for y := 0; y < height; y++ {
			out[y*width+x] = colOut[y]
		}
	}

	return out
}

// ifft2 computes the normalized inverse 2D transform and returns the real
// part, which is the correlation surface for the Fourier-domain methods.
func ifft2(coeff []complex128, width, height int) []float64 {
	buf := make([]complex128, len(coeff))
	copy(buf, coeff)

	rowFFT := fourier.NewCmplxFFT(width)
	row := make([]complex128, width)
	for y := 0; y < height; y++ {
		copy(row, buf[y*width:(y+1)*width])
		rowFFT.Sequence(buf[y*width:(y+1)*width], row)
	}

	colFFT := fourier.NewCmplxFFT(height)
	col := make([]complex128, height)
	colOut := make([]complex128, height)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			col[y] = buf[y*width+x]
		}
		colFFT.Sequence(colOut, col)
		for y := 0; y < height; y++ {
			buf[y*width+x] = colOut[y]
		}
	}

	norm := float64(width * height)
	out := make([]float64, len(buf))
	for i, v := range buf {
		out[i] = real(v) / norm
	}
	return out
}

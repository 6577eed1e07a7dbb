package capture

import "fmt"

// ringSize computes AF_PACKET ring geometry for a memory budget.
//
// PACKET_MMAP requires the frame size to be a multiple of TPACKET_ALIGNMENT,
// the block size to be a multiple of the page size and of the frame size.
// blockSize * numBlocks approximates bufferMB.
func ringSize(bufferMB, snaplen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	const tpacketAlignment = 16
	const tpacketHdrLen = 52
	const maxBlockSize = 4 << 20

	if bufferMB <= 0 {
		return 0, 0, 0, fmt.Errorf("buffer size must be positive, got %d MB", bufferMB)
	}
	if snaplen <= 0 {
		return 0, 0, 0, fmt.Errorf("snaplen must be positive, got %d", snaplen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 {
		return 0, 0, 0, fmt.Errorf("page size must be a positive multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	frameSize = align(tpacketHdrLen+snaplen, tpacketAlignment)

	blockSize = lcm(pageSize, frameSize)
	if blockSize < frameSize {
		blockSize = frameSize
	}
	if blockSize > maxBlockSize {
		// fit as many whole frames as a page aligned 4 MB block allows
		frames := maxBlockSize / frameSize
		if frames < 1 {
			frames = 1
		}
		blockSize = align(frames*frameSize, pageSize)
		if blockSize%frameSize != 0 {
			// page rounding broke frame alignment; fall back to one frame per block
			blockSize = lcm(pageSize, frameSize)
		}
	}

	numBlocks = bufferMB << 20 / blockSize
	if numBlocks < 1 {
		numBlocks = 1
	}
	return frameSize, blockSize, numBlocks, nil
}

func align(n, to int) int {
	return (n + to - 1) / to * to
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcd(a, b) * b
}

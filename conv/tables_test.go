package conv

var (
	xcchNextOutput = [][2]uint8{
		{0, 3}, {1, 2}, {0, 3}, {1, 2}, {3, 0}, {2, 1}, {3, 0}, {2, 1},
		{3, 0}, {2, 1}, {3, 0}, {2, 1}, {0, 3}, {1, 2}, {0, 3}, {1, 2},
	}
	xcchNextState = [][2]uint8{
		{0, 1}, {2, 3}, {4, 5}, {6, 7}, {8, 9}, {10, 11}, {12, 13}, {14, 15},
		{0, 1}, {2, 3}, {4, 5}, {6, 7}, {8, 9}, {10, 11}, {12, 13}, {14, 15},
	}
	afs795NextOutput = [][2]uint8{
		{0, 7}, {3, 4}, {2, 5}, {1, 6}, {2, 5}, {1, 6}, {0, 7}, {3, 4},
		{3, 4}, {0, 7}, {1, 6}, {2, 5}, {1, 6}, {2, 5}, {3, 4}, {0, 7},
		{3, 4}, {0, 7}, {1, 6}, {2, 5}, {1, 6}, {2, 5}, {3, 4}, {0, 7},
		{0, 7}, {3, 4}, {2, 5}, {1, 6}, {2, 5}, {1, 6}, {0, 7}, {3, 4},
		{0, 7}, {3, 4}, {2, 5}, {1, 6}, {2, 5}, {1, 6}, {0, 7}, {3, 4},
		{3, 4}, {0, 7}, {1, 6}, {2, 5}, {1, 6}, {2, 5}, {3, 4}, {0, 7},
		{3, 4}, {0, 7}, {1, 6}, {2, 5}, {1, 6}, {2, 5}, {3, 4}, {0, 7},
		{0, 7}, {3, 4}, {2, 5}, {1, 6}, {2, 5}, {1, 6}, {0, 7}, {3, 4},
	}
	afs795NextState = [][2]uint8{
		{0, 1}, {2, 3}, {5, 4}, {7, 6}, {9, 8}, {11, 10}, {12, 13}, {14, 15},
		{16, 17}, {18, 19}, {21, 20}, {23, 22}, {25, 24}, {27, 26}, {28, 29}, {30, 31},
		{33, 32}, {35, 34}, {36, 37}, {38, 39}, {40, 41}, {42, 43}, {45, 44}, {47, 46},
		{49, 48}, {51, 50}, {52, 53}, {54, 55}, {56, 57}, {58, 59}, {61, 60}, {63, 62},
		{1, 0}, {3, 2}, {4, 5}, {6, 7}, {8, 9}, {10, 11}, {13, 12}, {15, 14},
		{17, 16}, {19, 18}, {20, 21}, {22, 23}, {24, 25}, {26, 27}, {29, 28}, {31, 30},
		{32, 33}, {34, 35}, {37, 36}, {39, 38}, {41, 40}, {43, 42}, {44, 45}, {46, 47},
		{48, 49}, {50, 51}, {53, 52}, {55, 54}, {57, 56}, {59, 58}, {60, 61}, {62, 63},
	}
	afs795NextTermOutput = []uint8{
		0, 3, 5, 6, 5, 6, 0, 3, 3, 0, 6, 5, 6, 5, 3, 0,
		4, 7, 1, 2, 1, 2, 4, 7, 7, 4, 2, 1, 2, 1, 7, 4,
		7, 4, 2, 1, 2, 1, 7, 4, 4, 7, 1, 2, 1, 2, 4, 7,
		3, 0, 6, 5, 6, 5, 3, 0, 0, 3, 5, 6, 5, 6, 0, 3,
	}
	afs795NextTermState = []uint8{
		0, 2, 4, 6, 8, 10, 12, 14, 16, 18, 20, 22, 24, 26, 28, 30,
		32, 34, 36, 38, 40, 42, 44, 46, 48, 50, 52, 54, 56, 58, 60, 62,
		0, 2, 4, 6, 8, 10, 12, 14, 16, 18, 20, 22, 24, 26, 28, 30,
		32, 34, 36, 38, 40, 42, 44, 46, 48, 50, 52, 54, 56, 58, 60, 62,
	}
	afs795Puncture = []int{
		1, 2, 4, 5, 8, 22, 70, 118, 166, 214, 262, 310,
		317, 319, 325, 332, 334, 341, 343, 349, 356, 358, 365, 367,
		373, 380, 382, 385, 389, 391, 397, 404, 406, 409, 413, 415,
		421, 428, 430, 433, 437, 439, 445, 452, 454, 457, 461, 463,
		469, 476, 478, 481, 485, 487, 490, 493, 500, 502, 503, 505,
		506, 508, 509, 511, 512,
	}
)

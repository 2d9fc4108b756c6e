package ballistics

// Firing-table data. Velocities in m/s, elevations in degrees, ranges in meters.
// Entries are declared per projectile in ascending charge order.

var table155 = newTable(Howitzer155,
	Entry{Projectile: "HE", Charge: 3, BaseElevation: 12, MuzzleVelocity: 680, MaxRange: 15000},
	Entry{Projectile: "HE", Charge: 4, BaseElevation: 26, MuzzleVelocity: 750, MaxRange: 20000},
	Entry{Projectile: "HE", Charge: 5, BaseElevation: 38, MuzzleVelocity: 800, MaxRange: 24000},
	Entry{Projectile: "HE", Charge: 6, BaseElevation: 55, MuzzleVelocity: 850, MaxRange: 30000},
	Entry{Projectile: "ERFB-BB", Charge: 3, BaseElevation: 10, MuzzleVelocity: 700, MaxRange: 18000},
	Entry{Projectile: "ERFB-BB", Charge: 4, BaseElevation: 22, MuzzleVelocity: 780, MaxRange: 25000},
	Entry{Projectile: "ERFB-BB", Charge: 5, BaseElevation: 34, MuzzleVelocity: 840, MaxRange: 30000},
	Entry{Projectile: "ERFB-BB", Charge: 6, BaseElevation: 48, MuzzleVelocity: 897, MaxRange: 39000},
	Entry{Projectile: "V-LAP", Charge: 6, BaseElevation: 58, MuzzleVelocity: 950, MaxRange: 52000},
	Entry{Projectile: "EXCALIBUR", Charge: 6, BaseElevation: 50, MuzzleVelocity: 850, MaxRange: 40000, Guided: true},
)

var table105M101A1 = newTable(Howitzer105M101A1,
	Entry{Projectile: "HE M1", Charge: 1, BaseElevation: 8, MuzzleVelocity: 375, MaxRange: 5800},
	Entry{Projectile: "HE M1", Charge: 2, BaseElevation: 12, MuzzleVelocity: 400, MaxRange: 7200},
	Entry{Projectile: "HE M1", Charge: 3, BaseElevation: 18, MuzzleVelocity: 435, MaxRange: 8900},
	Entry{Projectile: "HE M1", Charge: 4, BaseElevation: 26, MuzzleVelocity: 472, MaxRange: 11500},
	Entry{Projectile: "HEAT M67", Charge: 4, BaseElevation: 26, MuzzleVelocity: 438, MaxRange: 1500},
	Entry{Projectile: "SMOKE M84", Charge: 4, BaseElevation: 26, MuzzleVelocity: 472, MaxRange: 7000},
)

var table105LG1 = newTable(Howitzer105LG1,
	Entry{Projectile: "HE M1", Charge: 4, BaseElevation: 28, MuzzleVelocity: 600, MaxRange: 14000},
	Entry{Projectile: "HE M1", Charge: 5, BaseElevation: 32, MuzzleVelocity: 630, MaxRange: 15500},
	Entry{Projectile: "ERATO HE", Charge: 5, BaseElevation: 30, MuzzleVelocity: 640, MaxRange: 17500},
	Entry{Projectile: "V-LAP 105", Charge: 5, BaseElevation: 45, MuzzleVelocity: 660, MaxRange: 22000},
	Entry{Projectile: "SMOKE M84", Charge: 4, BaseElevation: 28, MuzzleVelocity: 600, MaxRange: 9000},
	Entry{Projectile: "Illum M485", Charge: 5, BaseElevation: 34, MuzzleVelocity: 630, MaxRange: 11000},
)

var table105L119 = newTable(Howitzer105L119,
	Entry{Projectile: "L31 HE", Charge: 5, BaseElevation: 30, MuzzleVelocity: 700, MaxRange: 15000},
	Entry{Projectile: "L31 HE", Charge: 6, BaseElevation: 34, MuzzleVelocity: 755, MaxRange: 17200},
	Entry{Projectile: "L47 Smoke", Charge: 6, BaseElevation: 34, MuzzleVelocity: 750, MaxRange: 16000},
	Entry{Projectile: "L48 Illum", Charge: 6, BaseElevation: 36, MuzzleVelocity: 750, MaxRange: 15500},
)

var table120M120 = newTable(Mortar120M120,
	Entry{Projectile: "M931 HE", Charge: 1, BaseElevation: 50, MuzzleVelocity: 200, MaxRange: 3500},
	Entry{Projectile: "M931 HE", Charge: 2, BaseElevation: 55, MuzzleVelocity: 250, MaxRange: 5500},
	Entry{Projectile: "M931 HE", Charge: 3, BaseElevation: 60, MuzzleVelocity: 300, MaxRange: 7200},
	Entry{Projectile: "XM1113 RAP", Charge: 3, BaseElevation: 60, MuzzleVelocity: 350, MaxRange: 13000},
	Entry{Projectile: "M821 Illum", Charge: 3, BaseElevation: 60, MuzzleVelocity: 280, MaxRange: 6000},
	Entry{Projectile: "M722 Smoke", Charge: 3, BaseElevation: 60, MuzzleVelocity: 280, MaxRange: 6500},
	Entry{Projectile: "M993 Penetrator", Charge: 3, BaseElevation: 50, MuzzleVelocity: 320, MaxRange: 4000},
)

var table120HY112 = newTable(Mortar120HY112,
	Entry{Projectile: "HE Y12-HE", Charge: 1, BaseElevation: 50, MuzzleVelocity: 180, MaxRange: 3000},
	Entry{Projectile: "HE Y12-HE", Charge: 2, BaseElevation: 55, MuzzleVelocity: 230, MaxRange: 5000},
	Entry{Projectile: "HE Y12-HE", Charge: 3, BaseElevation: 60, MuzzleVelocity: 280, MaxRange: 7000},
	Entry{Projectile: "RAP Y12-RAP", Charge: 3, BaseElevation: 60, MuzzleVelocity: 320, MaxRange: 9500},
	Entry{Projectile: "Illum Y12-ILL", Charge: 3, BaseElevation: 60, MuzzleVelocity: 260, MaxRange: 5500},
	Entry{Projectile: "Smoke Y12-SMK", Charge: 3, BaseElevation: 60, MuzzleVelocity: 260, MaxRange: 6000},
	Entry{Projectile: "Pen Y12-PEN", Charge: 3, BaseElevation: 50, MuzzleVelocity: 300, MaxRange: 3500},
)

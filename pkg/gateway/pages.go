// Copyright 2025-2026 KMT Marketplace

package gateway

// Operator-facing HTML pages. The copy is Arabic (RTL) because that is what
// the marketplace's operators use.

const pageQR = `<!DOCTYPE html>
<html lang="ar" dir="rtl">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>QR Code - WhatsApp</title>
    <style>
        body { font-family: Arial, sans-serif; text-align: center; margin-top: 50px; background-color: #f5f5f5; }
        h1 { color: #333; }
        img { border: 5px solid #25D366; border-radius: 10px; box-shadow: 0 4px 8px rgba(0,0,0,0.1); }
    </style>
</head>
<body>
    <h1>امسح رمز QR لربط الجهاز</h1>
    <img src="%s" alt="QR Code" />
</body>
</html>
`

const pageWaiting = `<!DOCTYPE html>
<html lang="ar" dir="rtl">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>QR Code - WhatsApp</title>
    <style>
        body { font-family: Arial, sans-serif; text-align: center; margin-top: 50px; background-color: #f5f5f5; }
        h1 { color: #666; }
        p { color: #999; }
    </style>
</head>
<body>
    <h1>جاري انتظار رمز QR...</h1>
    <p>الحالة: %s</p>
</body>
</html>
`

const pageUnauthorized = `<!DOCTYPE html>
<html lang="ar" dir="rtl">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>غير مصرح - QR Code</title>
    <style>
        body { font-family: Arial, sans-serif; text-align: center; margin-top: 50px; background-color: #f5f5f5; }
        .error { background: white; padding: 30px; border-radius: 10px; box-shadow: 0 4px 6px rgba(0,0,0,0.1); max-width: 500px; margin: 0 auto; }
        h1 { color: #d32f2f; }
        p { color: #666; }
    </style>
</head>
<body>
    <div class="error">
        <h1>⚠️ غير مصرح بالوصول</h1>
        <p>يجب توفير رمز سري للوصول إلى صفحة QR Code</p>
        <p>استخدم: <code>/qr?secret=YOUR_SECRET</code></p>
    </div>
</body>
</html>
`

const pageForbidden = `<!DOCTYPE html>
<html lang="ar" dir="rtl">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>رمز خاطئ - QR Code</title>
    <style>
        body { font-family: Arial, sans-serif; text-align: center; margin-top: 50px; background-color: #f5f5f5; }
        .error { background: white; padding: 30px; border-radius: 10px; box-shadow: 0 4px 6px rgba(0,0,0,0.1); max-width: 500px; margin: 0 auto; }
        h1 { color: #d32f2f; }
        p { color: #666; }
    </style>
</head>
<body>
    <div class="error">
        <h1>❌ رمز سري خاطئ</h1>
        <p>الرمز السري المقدم غير صحيح</p>
    </div>
</body>
</html>
`
